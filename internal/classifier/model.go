package classifier

import (
	"os"
	"time"

	"github.com/tphakala/voicetrigger/internal/errors"
)

// TFLiteOptions configures the TensorFlow Lite classifier. ModelData takes
// precedence over ModelPath.
type TFLiteOptions struct {
	ModelPath string
	ModelData []byte
	Threads   int
}

// TensorInfo describes one model tensor.
type TensorInfo struct {
	Name         string
	Type         string
	Shape        []int
	Elements     int
	Quantization Quantization
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Path      string
	SizeBytes int
	Threads   int
	Input     TensorInfo
	Output    TensorInfo
}

func readModel(opts TFLiteOptions) ([]byte, error) {
	if len(opts.ModelData) > 0 {
		return opts.ModelData, nil
	}
	if opts.ModelPath == "" {
		return nil, errors.Newf("no model data or model path given").
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}
	start := time.Now()
	data, err := os.ReadFile(opts.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(opts.ModelPath, "wakeword").
			Timing("model-load", time.Since(start)).
			Build()
	}
	return data, nil
}
