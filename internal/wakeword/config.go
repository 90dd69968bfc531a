package wakeword

import (
	"time"

	"github.com/tphakala/voicetrigger/internal/errors"
)

const (
	DefaultThreshold         = 0.9
	DefaultTriggerDurationMs = 450
	DefaultBackBufferMs      = 300
	DefaultQueueSize         = 16
	DefaultInferenceInterval = 30 * time.Millisecond

	// audioRingSeconds is the length of raw audio kept next to the features.
	audioRingSeconds = 2
	// SelfCheckLimit is the highest plausible confidence for an all-zero
	// feature matrix.
	SelfCheckLimit = 0.1
	// statsLogEvery controls the periodic inference debug log.
	statsLogEvery = 100
)

// Config holds the detector parameters.
type Config struct {
	Threshold         float32
	TriggerDurationMs uint32
	BackBufferMs      uint32
	UseLargeMemory    bool
	QueueSize         int
	InferenceInterval time.Duration
	SelfCheck         bool
}

// DefaultConfig returns the stock detector parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		TriggerDurationMs: DefaultTriggerDurationMs,
		BackBufferMs:      DefaultBackBufferMs,
		UseLargeMemory:    true,
		QueueSize:         DefaultQueueSize,
		InferenceInterval: DefaultInferenceInterval,
		SelfCheck:         true,
	}
}

// TriggerDuration returns how long the confidence must stay above the
// threshold before a detection fires.
func (c Config) TriggerDuration() time.Duration {
	return time.Duration(c.TriggerDurationMs) * time.Millisecond
}

func (c *Config) validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.Newf("threshold must be between 0 and 1, got %v", c.Threshold).
			Component("wakeword").
			Category(errors.CategoryValidation).
			Context("threshold", c.Threshold).
			Build()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.InferenceInterval <= 0 {
		c.InferenceInterval = DefaultInferenceInterval
	}
	return nil
}
