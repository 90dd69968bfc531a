package wakeword

import "time"

// ValidationState is the state of the detection validator.
type ValidationState int

const (
	StateIdle ValidationState = iota
	StateCandidate
)

func (s ValidationState) String() string {
	if s == StateCandidate {
		return "candidate"
	}
	return "idle"
}

// Validator confirms a detection once the confidence has stayed at or above
// the threshold for the trigger duration. A confirmation returns the validator
// to idle, so a sustained high confidence fires again only after another full
// trigger duration. It is not safe for concurrent use.
type Validator struct {
	threshold   float32
	trigger     time.Duration
	state       ValidationState
	start       time.Time
	consecutive uint32
}

// NewValidator returns an idle validator.
func NewValidator(threshold float32, trigger time.Duration) *Validator {
	return &Validator{threshold: threshold, trigger: trigger}
}

// Update feeds one confidence observed at now and reports whether a detection
// was confirmed.
func (v *Validator) Update(confidence float32, now time.Time) bool {
	if confidence < v.threshold {
		v.Reset()
		return false
	}

	if v.state == StateIdle {
		v.state = StateCandidate
		v.start = now
		v.consecutive = 1
	} else {
		v.consecutive++
	}

	if now.Sub(v.start) >= v.trigger {
		v.Reset()
		return true
	}
	return false
}

// Reset discards any candidate.
func (v *Validator) Reset() {
	v.state = StateIdle
	v.start = time.Time{}
	v.consecutive = 0
}

func (v *Validator) SetThreshold(t float32) { v.threshold = t }

func (v *Validator) Threshold() float32 { return v.threshold }

func (v *Validator) State() ValidationState { return v.state }

// Consecutive returns the number of above-threshold observations in the
// current candidate.
func (v *Validator) Consecutive() uint32 { return v.consecutive }
