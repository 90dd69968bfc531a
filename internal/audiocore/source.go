package audiocore

import "context"

const (
	SampleRate = 16000
	// DefaultFrameSize is 20 ms at SampleRate.
	DefaultFrameSize = 320
	BitDepth         = 16
	NumChannels      = 1
)

// Format describes the PCM a source delivers.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
	FrameSize  int // samples per frame
}

// DefaultFormat is mono 16-bit at 16 kHz in 20 ms frames.
func DefaultFormat() Format {
	return Format{
		SampleRate: SampleRate,
		Channels:   NumChannels,
		BitDepth:   BitDepth,
		FrameSize:  DefaultFrameSize,
	}
}

// Source produces fixed-size PCM frames.
type Source interface {
	// Name returns a human readable source name.
	Name() string

	// Format returns the format of delivered frames.
	Format() Format

	// Start begins delivering frames. The source stops when ctx is cancelled.
	Start(ctx context.Context) error

	// Frames returns the frame channel. It is closed when the source stops.
	Frames() <-chan []int16

	// Stop halts the source. Calling Stop more than once is safe.
	Stop() error
}

// ErrorSource is implemented by sources that can fail after Start, such as
// a file decoder hitting a corrupt block.
type ErrorSource interface {
	Err() error
}
