package audiocore

import (
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/voicetrigger/internal/errors"
)

// Framer re-chunks variable sized capture callbacks into fixed frames. Capture
// drivers hand over whatever the device period happens to be; the pipeline
// wants exactly FrameSize samples per call.
type Framer struct {
	mu         sync.Mutex
	ring       *ringbuffer.RingBuffer
	frameBytes int
	scratch    []byte
	overruns   atomic.Uint64
}

// NewFramer creates a framer holding up to capacityFrames frames of
// frameSize samples.
func NewFramer(frameSize, capacityFrames int) (*Framer, error) {
	if frameSize <= 0 || capacityFrames <= 0 {
		return nil, errors.Newf("invalid framer size: frame %d, capacity %d", frameSize, capacityFrames).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	frameBytes := frameSize * 2
	return &Framer{
		ring:       ringbuffer.New(frameBytes * capacityFrames),
		frameBytes: frameBytes,
		scratch:    make([]byte, frameBytes),
	}, nil
}

// Write stores raw little-endian PCM. A chunk that does not fit is dropped
// whole and counted as an overrun; it reports whether p was stored.
func (f *Framer) Write(p []byte) bool {
	if len(p) == 0 {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ring.Free() < len(p) {
		f.overruns.Add(1)
		return false
	}
	if _, err := f.ring.Write(p); err != nil {
		f.overruns.Add(1)
		return false
	}
	return true
}

// Next returns the oldest complete frame, or nil when less than a frame is
// buffered. The returned slice is newly allocated.
func (f *Framer) Next() []int16 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ring.Length() < f.frameBytes {
		return nil
	}
	n, err := f.ring.Read(f.scratch)
	if err != nil || n != f.frameBytes {
		return nil
	}
	return DecodePCM16(make([]int16, 0, n/2), f.scratch[:n])
}

// Pending returns the number of buffered bytes.
func (f *Framer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ring.Length()
}

func (f *Framer) Overruns() uint64 { return f.overruns.Load() }

// Reset discards buffered audio.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ring.Reset()
}
