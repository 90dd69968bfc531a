// Package classifier defines the wake-word model contract and its
// implementations: a TensorFlow Lite interpreter for production and a
// scripted classifier with deterministic output for tests and replays.
package classifier

// Classifier scores one feature matrix. Infer returns a confidence in [0, 1].
type Classifier interface {
	Infer(features []float32) (float32, error)
	// InputSize returns the number of feature values the model consumes.
	InputSize() int
	Close() error
}
