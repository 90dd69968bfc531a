package analysis

import (
	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/cpuspec"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

// ModelReport describes a loaded wake word model and its zero-input check.
type ModelReport struct {
	Info           classifier.ModelInfo
	CPU            cpuspec.CPUSpec
	ZeroConfidence float32
	// Suspicious is set when silence scores above wakeword.SelfCheckLimit.
	Suspicious bool
}

// LoadClassifier loads the configured TensorFlow Lite model with a thread
// count sized for the host CPU.
func LoadClassifier(settings *conf.Settings) (*classifier.TFLite, error) {
	host := cpuspec.GetCPUSpec()
	threads := host.InferenceThreads(settings.WakeWord.Threads)

	GetLogger().Info("loading wake word model",
		logger.String("path", settings.WakeWord.ModelPath),
		logger.Int("threads", threads),
		logger.String("cpu", host.BrandName))

	return classifier.NewTFLite(classifier.TFLiteOptions{
		ModelPath: settings.WakeWord.ModelPath,
		Threads:   threads,
	})
}

// CheckModel loads the configured model, reports its tensors and scores an
// all-zero input.
func CheckModel(settings *conf.Settings) (*ModelReport, error) {
	tfl, err := LoadClassifier(settings)
	if err != nil {
		return nil, err
	}
	defer tfl.Close() //nolint:errcheck // nothing to flush

	zero, suspicious, err := zeroInputCheck(tfl)
	if err != nil {
		return nil, err
	}
	return &ModelReport{
		Info:           tfl.Info(),
		CPU:            cpuspec.GetCPUSpec(),
		ZeroConfidence: zero,
		Suspicious:     suspicious,
	}, nil
}

func zeroInputCheck(c classifier.Classifier) (float32, bool, error) {
	confidence, err := c.Infer(make([]float32, c.InputSize()))
	if err != nil {
		return 0, false, err
	}
	return confidence, confidence > wakeword.SelfCheckLimit, nil
}
