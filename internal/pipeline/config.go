package pipeline

import (
	"path/filepath"
	"time"

	"github.com/tphakala/voicetrigger/internal/api"
	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/monitor"
	"github.com/tphakala/voicetrigger/internal/mqtt"
	"github.com/tphakala/voicetrigger/internal/session"
	"github.com/tphakala/voicetrigger/internal/stream"
	"github.com/tphakala/voicetrigger/internal/vad"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func vadConfig(s *conf.Settings) vad.Config {
	return vad.Config{
		Sensitivity:     float32(s.VAD.Sensitivity),
		EnergyThreshold: float32(s.VAD.Threshold),
		SilenceMs:       uint32(max(s.VAD.SilenceMs, 0)), //nolint:gosec // clamped
		VoiceMs:         uint32(max(s.VAD.VoiceMs, 0)),   //nolint:gosec // clamped
	}
}

func wakeWordConfig(s *conf.Settings) wakeword.Config {
	return wakeword.Config{
		Threshold:         float32(s.WakeWord.Threshold),
		TriggerDurationMs: uint32(max(s.WakeWord.TriggerDurationMs, 0)), //nolint:gosec // clamped
		BackBufferMs:      uint32(max(s.WakeWord.BackBufferMs, 0)),      //nolint:gosec // clamped
		UseLargeMemory:    s.WakeWord.UseLargeMemory,
		QueueSize:         s.WakeWord.QueueSize,
		InferenceInterval: ms(s.WakeWord.InferenceIntervalMs),
		SelfCheck:         s.WakeWord.SelfCheck,
	}
}

func managerConfig(s *conf.Settings) audiocore.ManagerConfig {
	cfg := audiocore.DefaultManagerConfig()
	if s.Audio.SampleRate > 0 {
		cfg.SampleRate = s.Audio.SampleRate
	}
	if s.WakeWord.BackBufferMs > 0 {
		cfg.BackBufferMs = uint32(s.WakeWord.BackBufferMs) //nolint:gosec // positive
	}
	return cfg
}

// room returns the configured room, or the node id when none is set.
func room(s *conf.Settings) string {
	if s.Session.Room != "" {
		return s.Session.Room
	}
	return s.Main.NodeID
}

func sessionConfig(s *conf.Settings) session.Config {
	cfg := session.DefaultConfig()
	if s.Session.SilenceTimeoutMs > 0 {
		cfg.SilenceTimeout = ms(s.Session.SilenceTimeoutMs)
	}
	if s.Session.MaxStreamMs > 0 {
		cfg.MaxStream = ms(s.Session.MaxStreamMs)
	}
	if s.Session.CooldownMs > 0 {
		cfg.Cooldown = ms(s.Session.CooldownMs)
	}
	cfg.Room = room(s)
	return cfg
}

func streamConfig(s *conf.Settings) stream.Config {
	return stream.Config{
		URL:            s.Stream.URL,
		Room:           room(s),
		SampleRate:     s.Audio.SampleRate,
		ReconnectDelay: ms(s.Stream.ReconnectDelayMs),
		MaxRetries:     s.Stream.MaxRetries,
	}
}

func mqttConfig(s *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.MQTT.Broker
	cfg.Username = s.MQTT.Username
	cfg.Password = s.MQTT.Password
	cfg.Retain = s.MQTT.Retain
	if s.MQTT.Topic != "" {
		cfg.Topic = s.MQTT.Topic
	}
	if s.Main.NodeID != "" {
		cfg.ClientID = "voicetrigger-" + s.Main.NodeID
	}
	return cfg
}

func apiConfig(s *conf.Settings) api.Config {
	cfg := api.DefaultConfig()
	if s.API.Listen != "" {
		cfg.Listen = s.API.Listen
	}
	cfg.NodeName = s.Main.Name
	cfg.NodeID = s.Main.NodeID
	return cfg
}

func monitorConfig(s *conf.Settings, clipDir string) monitor.Config {
	return monitor.Config{
		Interval:       time.Duration(s.Monitor.IntervalSeconds) * time.Second,
		MemoryCritical: s.Monitor.MemoryCritical,
		DiskCritical:   s.Monitor.DiskCritical,
		DiskPath:       clipDir,
	}
}

// resolvePath makes a relative file path relative to the config directory.
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	return filepath.Join(conf.GetBasePath(filepath.Dir(path)), filepath.Base(path))
}
