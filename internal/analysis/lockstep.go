package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/voicetrigger/internal/audiocore"
)

const idlePoll = 200 * time.Microsecond

// lockstepSource forwards frames from a faster-than-realtime source only once
// the detector has handled every posted feature signal, so no inference is
// dropped for lack of queue space.
type lockstepSource struct {
	audiocore.Source
	idle   func() bool
	frames chan []int16

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newLockstepSource(src audiocore.Source) *lockstepSource {
	return &lockstepSource{
		Source: src,
		idle:   func() bool { return true },
		frames: make(chan []int16),
	}
}

func (l *lockstepSource) Frames() <-chan []int16 { return l.frames }

func (l *lockstepSource) Start(ctx context.Context) error {
	if err := l.Source.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go l.forward(ctx, done)
	return nil
}

func (l *lockstepSource) forward(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer close(l.frames)

	in := l.Source.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			if !l.waitIdle(ctx) {
				return
			}
			select {
			case l.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *lockstepSource) waitIdle(ctx context.Context) bool {
	for !l.idle() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(idlePoll):
		}
	}
	return true
}

func (l *lockstepSource) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := l.Source.Stop()
	if done != nil {
		<-done
	}
	return err
}

// Err reports the wrapped source's read error, if it has one.
func (l *lockstepSource) Err() error {
	if es, ok := l.Source.(audiocore.ErrorSource); ok {
		return es.Err()
	}
	return nil
}
