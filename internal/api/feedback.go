package api

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/voicetrigger/internal/wakeword"
)

// Feedback remembers recent detections for a limited window so that a user
// can flag them as false positives shortly after they happen.
type Feedback struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewFeedback returns a feedback window of the given length.
func NewFeedback(window time.Duration) *Feedback {
	// no janitor goroutine; Remember purges expired entries
	return &Feedback{cache: cache.New(window, 0)}
}

// Remember opens the window for d.
func (f *Feedback) Remember(d wakeword.Detection) {
	f.cache.DeleteExpired()
	f.cache.SetDefault(d.ID, d)
}

// Take closes the window for id and returns the detection, or false if the
// window has expired or the detection was already flagged.
func (f *Feedback) Take(id string) (wakeword.Detection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.cache.Get(id)
	if !ok {
		return wakeword.Detection{}, false
	}
	f.cache.Delete(id)
	d, ok := v.(wakeword.Detection)
	return d, ok
}
