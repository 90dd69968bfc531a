package wakeword

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidatorFiresAfterTriggerDuration(t *testing.T) {
	t.Parallel()

	v := NewValidator(0.9, 450*time.Millisecond)
	base := time.Unix(1000, 0)

	fired := -1
	for i := range 30 {
		now := base.Add(time.Duration(i*30) * time.Millisecond)
		if v.Update(0.95, now) {
			fired = i
			break
		}
	}

	// 15 * 30ms = 450ms after the first crossing
	assert.Equal(t, 15, fired)
	assert.Equal(t, StateIdle, v.State(), "confirmation returns to idle")
	assert.Zero(t, v.Consecutive())
}

func TestValidatorResetsBelowThreshold(t *testing.T) {
	t.Parallel()

	v := NewValidator(0.9, 100*time.Millisecond)
	base := time.Unix(0, 0)

	assert.False(t, v.Update(0.95, base))
	assert.Equal(t, StateCandidate, v.State())
	assert.False(t, v.Update(0.91, base.Add(50*time.Millisecond)))
	assert.Equal(t, uint32(2), v.Consecutive())

	// one dip restarts the timing
	assert.False(t, v.Update(0.5, base.Add(90*time.Millisecond)))
	assert.Equal(t, StateIdle, v.State())
	assert.False(t, v.Update(0.95, base.Add(120*time.Millisecond)))
	assert.False(t, v.Update(0.95, base.Add(200*time.Millisecond)))
	assert.True(t, v.Update(0.95, base.Add(220*time.Millisecond)))
}

func TestValidatorThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	v := NewValidator(0.9, 0)
	assert.True(t, v.Update(0.9, time.Unix(0, 0)), "zero trigger fires on the first crossing")
	assert.False(t, v.Update(0.8999, time.Unix(0, 0)))
}

func TestValidatorSustainedConfidenceRefires(t *testing.T) {
	t.Parallel()

	v := NewValidator(0.5, 100*time.Millisecond)
	base := time.Unix(0, 0)

	var fires []int
	for i := range 20 {
		if v.Update(1, base.Add(time.Duration(i*20)*time.Millisecond)) {
			fires = append(fires, i)
		}
	}
	// candidate starts at 0, fires at 5, restarts at 6, fires at 11, ...
	assert.Equal(t, []int{5, 11, 17}, fires)
}

func TestValidatorSetThreshold(t *testing.T) {
	t.Parallel()

	v := NewValidator(0.9, time.Second)
	v.SetThreshold(0.3)
	assert.InDelta(t, 0.3, v.Threshold(), 1e-6)
	assert.False(t, v.Update(0.4, time.Unix(0, 0)))
	assert.Equal(t, StateCandidate, v.State())
	assert.Equal(t, "candidate", v.State().String())
	assert.Equal(t, "idle", StateIdle.String())
}
