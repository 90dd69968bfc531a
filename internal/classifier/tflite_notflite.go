//go:build notflite

// This file is used when building with -tags notflite on hosts without the
// TensorFlow Lite C library. The scripted classifier still works; loading a
// model always fails.
package classifier

import (
	"github.com/tphakala/voicetrigger/internal/errors"
)

// TFLite is a stub for builds without TensorFlow Lite.
type TFLite struct {
	info ModelInfo
}

// NewTFLite validates the options and reports that model inference is not
// compiled in.
func NewTFLite(opts TFLiteOptions) (*TFLite, error) {
	if _, err := readModel(opts); err != nil {
		return nil, err
	}
	return nil, notCompiledError(opts.ModelPath)
}

func (c *TFLite) Info() ModelInfo { return c.info }
func (c *TFLite) InputSize() int  { return c.info.Input.Elements }
func (c *TFLite) Close() error    { return nil }

func (c *TFLite) Infer([]float32) (float32, error) {
	return 0, notCompiledError(c.info.Path)
}

func notCompiledError(path string) error {
	return errors.Newf("built without TensorFlow Lite support (notflite tag)").
		Component("classifier").
		Category(errors.CategoryModelInit).
		ModelContext(path, "wakeword").
		Build()
}
