// Package analysis runs the voice trigger over live capture or an audio file.
package analysis

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/tphakala/voicetrigger/internal/audiocore/sources/malgo"
	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/observability"
	"github.com/tphakala/voicetrigger/internal/pipeline"
)

// Realtime captures from the configured device and runs the full pipeline
// with every configured integration until ctx is cancelled.
func Realtime(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()
	logHostDetails(log)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	src, err := malgo.New(malgo.Config{
		Device:       settings.Audio.Source,
		Backend:      settings.Audio.Backend,
		SampleRate:   uint32(settings.Audio.SampleRate), //nolint:gosec // validated positive
		FrameSize:    settings.Audio.FrameSize,
		BufferFrames: settings.Audio.BufferFrames,
		Gain:         settings.Audio.Gain,
	}, metrics.Audio)
	if err != nil {
		return err
	}

	var clf classifier.Classifier
	if settings.WakeWord.Enabled {
		tfl, err := LoadClassifier(settings)
		if err != nil {
			return err
		}
		defer tfl.Close() //nolint:errcheck // nothing to flush
		clf = tfl
	}

	p, err := pipeline.New(settings, pipeline.Options{
		Classifier:   clf,
		Source:       src,
		Metrics:      metrics,
		Integrations: true,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	log.Info("starting voice trigger in realtime mode",
		logger.String("node", settings.Main.NodeID),
		logger.String("source", src.Name()),
		logger.Float64("threshold", settings.WakeWord.Threshold),
		logger.Int("trigger_duration_ms", settings.WakeWord.TriggerDurationMs),
		logger.Bool("stream", settings.Stream.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled),
		logger.Bool("api", settings.API.Enabled))

	if err := p.Run(ctx); err != nil {
		return err
	}
	log.Info("voice trigger stopped")
	return nil
}

func logHostDetails(log logger.Logger) {
	info, err := host.Info()
	if err != nil {
		log.Warn("failed to read host details", logger.Error(err))
		return
	}
	log.Info("system details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("kernel_arch", info.KernelArch))
}
