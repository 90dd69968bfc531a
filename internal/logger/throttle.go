package logger

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits a repeating log message on a hot path. Suppressed occurrences are
// counted and reported with the next message that gets through.
type Throttle struct {
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

// NewThrottle allows one message per interval with a burst of one.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Warn logs msg at WARN level unless the throttle is exhausted.
func (t *Throttle) Warn(l Logger, msg string, fields ...Field) {
	t.emit(l, LogLevelWarn, msg, fields)
}

// Debug logs msg at DEBUG level unless the throttle is exhausted.
func (t *Throttle) Debug(l Logger, msg string, fields ...Field) {
	t.emit(l, LogLevelDebug, msg, fields)
}

func (t *Throttle) emit(l Logger, level LogLevel, msg string, fields []Field) {
	if l == nil {
		return
	}
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return
	}
	if n := t.suppressed.Swap(0); n > 0 {
		fields = append(fields, Uint64("suppressed", n))
	}
	l.Log(level, msg, fields...)
}

// Suppressed returns how many messages are waiting to be reported.
func (t *Throttle) Suppressed() uint64 {
	return t.suppressed.Load()
}
