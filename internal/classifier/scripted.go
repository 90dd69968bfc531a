package classifier

import (
	"sync"

	"github.com/tphakala/voicetrigger/internal/errors"
)

// DefaultInputSize is the feature count of the 49x40 MFCC matrix.
const DefaultInputSize = 1960

// ScoreFunc computes a confidence for the n-th call (zero based).
type ScoreFunc func(call int, features []float32) float32

// Scripted is a deterministic Classifier. It either replays a fixed sequence
// of confidences, repeating the last one, or delegates to a ScoreFunc.
type Scripted struct {
	mu        sync.Mutex
	inputSize int
	values    []float32
	fn        ScoreFunc
	calls     int
	err       error
	closed    bool
	last      []float32
}

// NewScripted returns a classifier that replays values.
func NewScripted(values ...float32) *Scripted {
	return &Scripted{inputSize: DefaultInputSize, values: values}
}

// NewScriptedFunc returns a classifier that scores with fn.
func NewScriptedFunc(fn ScoreFunc) *Scripted {
	return &Scripted{inputSize: DefaultInputSize, fn: fn}
}

// WithInputSize overrides the reported input size.
func (s *Scripted) WithInputSize(n int) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputSize = n
	return s
}

// FailWith makes subsequent Infer calls return err. A nil err clears it.
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Scripted) Infer(features []float32) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.Newf("classifier is closed").
			Component("classifier").
			Category(errors.CategoryState).
			Build()
	}

	call := s.calls
	s.calls++
	s.last = append(s.last[:0], features...)

	if s.err != nil {
		return 0, s.err
	}

	var c float32
	switch {
	case s.fn != nil:
		c = s.fn(call, features)
	case len(s.values) == 0:
		c = 0
	case call < len(s.values):
		c = s.values[call]
	default:
		c = s.values[len(s.values)-1]
	}
	return ClampConfidence(c), nil
}

func (s *Scripted) InputSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputSize
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns how many times Infer has been called.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastFeatures returns a copy of the features passed to the last Infer call.
func (s *Scripted) LastFeatures() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.last...)
}
