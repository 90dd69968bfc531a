//go:build !notflite

package classifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

// TFLite runs a single-input, single-output model with an INT8 or FLOAT32
// input tensor. Infer is serialized internally.
type TFLite struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	info        ModelInfo
	inputType   tflite.TensorType
	outputType  tflite.TensorType
}

// NewTFLite loads the model and allocates its tensors.
func NewTFLite(opts TFLiteOptions) (*TFLite, error) {
	start := time.Now()

	data, err := readModel(opts)
	if err != nil {
		return nil, err
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(opts.ModelPath, "wakeword").
			Context("model_size_bytes", len(data)).
			Build()
	}

	threads := max(opts.Threads, 1)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(opts.ModelPath, "wakeword").
			Build()
	}

	c := &TFLite{model: model, options: options, interpreter: interpreter}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		c.Close()
		return nil, errors.New(fmt.Errorf("tensor allocation failed: %v", status)).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(opts.ModelPath, "wakeword").
			Build()
	}

	if err := c.inspect(); err != nil {
		c.Close()
		return nil, err
	}

	c.info.Path = opts.ModelPath
	c.info.SizeBytes = len(data)
	c.info.Threads = threads

	GetLogger().Info("wake word model loaded",
		logger.String("model", opts.ModelPath),
		logger.Int("size_bytes", len(data)),
		logger.Int("threads", threads),
		logger.String("input_type", c.info.Input.Type),
		logger.Int("input_elements", c.info.Input.Elements),
		logger.Float32("input_scale", c.info.Input.Quantization.Scale),
		logger.Int("input_zero_point", int(c.info.Input.Quantization.ZeroPoint)),
		logger.String("output_type", c.info.Output.Type),
		logger.Duration("load_time", time.Since(start)))

	return c, nil
}

func (c *TFLite) inspect() error {
	if c.interpreter.GetInputTensorCount() < 1 || c.interpreter.GetOutputTensorCount() < 1 {
		return errors.Newf("model has no input or output tensor").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	in := c.interpreter.GetInputTensor(0)
	out := c.interpreter.GetOutputTensor(0)
	if in == nil || out == nil {
		return errors.Newf("cannot get model tensors").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	c.inputType = in.Type()
	c.outputType = out.Type()
	c.info.Input = describe(in)
	c.info.Output = describe(out)

	for _, t := range []struct {
		which string
		typ   tflite.TensorType
	}{{"input", c.inputType}, {"output", c.outputType}} {
		if t.typ != tflite.Int8 && t.typ != tflite.Float32 {
			return errors.Newf("unsupported %s tensor type %s", t.which, typeName(t.typ)).
				Component("classifier").
				Category(errors.CategoryModelInit).
				Context("tensor", t.which).
				Build()
		}
	}

	if c.inputType != tflite.Int8 {
		GetLogger().Warn("model input is not INT8 quantized", logger.String("type", c.info.Input.Type))
	}
	return nil
}

func describe(t *tflite.Tensor) TensorInfo {
	info := TensorInfo{Name: t.Name(), Type: typeName(t.Type()), Elements: 1}
	for i := range t.NumDims() {
		d := t.Dim(i)
		info.Shape = append(info.Shape, d)
		info.Elements *= d
	}
	qp := t.QuantizationParams()
	info.Quantization = Quantization{Scale: float32(qp.Scale), ZeroPoint: int32(qp.ZeroPoint)} //nolint:gosec // zero point fits int8
	return info
}

func typeName(t tflite.TensorType) string {
	switch t {
	case tflite.Float32:
		return "FLOAT32"
	case tflite.Int8:
		return "INT8"
	case tflite.UInt8:
		return "UINT8"
	case tflite.Int16:
		return "INT16"
	case tflite.Int32:
		return "INT32"
	default:
		return fmt.Sprintf("TYPE(%d)", int(t))
	}
}

// Info returns the loaded model description.
func (c *TFLite) Info() ModelInfo {
	return c.info
}

func (c *TFLite) InputSize() int {
	return c.info.Input.Elements
}

// Infer quantizes features as needed, runs the model and returns the first
// output value clamped to [0, 1]. Short inputs are padded.
func (c *TFLite) Infer(features []float32) (float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interpreter == nil {
		return 0, errors.Newf("classifier is closed").
			Component("classifier").
			Category(errors.CategoryState).
			Build()
	}

	in := c.interpreter.GetInputTensor(0)
	switch c.inputType {
	case tflite.Int8:
		c.info.Input.Quantization.QuantizeInto(in.Int8s(), features)
	default:
		dst := in.Float32s()
		n := copy(dst, features)
		clear(dst[n:])
	}

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return 0, errors.New(fmt.Errorf("tensor invoke failed: %v", status)).
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}

	out := c.interpreter.GetOutputTensor(0)
	var confidence float32
	switch c.outputType {
	case tflite.Int8:
		vals := out.Int8s()
		if len(vals) == 0 {
			return 0, emptyOutputError()
		}
		confidence = c.info.Output.Quantization.Dequantize(vals[0])
	default:
		vals := out.Float32s()
		if len(vals) == 0 {
			return 0, emptyOutputError()
		}
		confidence = vals[0]
	}

	return ClampConfidence(confidence), nil
}

func emptyOutputError() error {
	return errors.Newf("model produced an empty output tensor").
		Component("classifier").
		Category(errors.CategoryModelInference).
		Build()
}

// Close frees the interpreter and model.
func (c *TFLite) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
	return nil
}
