// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateAudioSettings,
		validateVADSettings,
		validateWakeWordSettings,
		validateSessionSettings,
		validateStreamSettings,
		validateMQTTSettings,
		validateDatastoreSettings,
		validateListenAddresses,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(s *Settings) []string {
	var errs []string
	if s.Audio.SampleRate != DefaultSampleRate {
		errs = append(errs, fmt.Sprintf("audio.samplerate must be %d, got %d", DefaultSampleRate, s.Audio.SampleRate))
	}
	if s.Audio.FrameSize <= 0 || s.Audio.FrameSize > s.Audio.SampleRate {
		errs = append(errs, fmt.Sprintf("audio.framesize must be between 1 and %d", s.Audio.SampleRate))
	}
	if s.Audio.Gain <= 0 {
		errs = append(errs, "audio.gain must be positive")
	}
	if s.Audio.BufferFrames < 2 {
		errs = append(errs, "audio.bufferframes must be at least 2")
	}
	return errs
}

func validateVADSettings(s *Settings) []string {
	var errs []string
	if s.VAD.Sensitivity < 0 || s.VAD.Sensitivity > 1 {
		errs = append(errs, "vad.sensitivity must be between 0 and 1")
	}
	if s.VAD.Threshold <= 0 {
		errs = append(errs, "vad.threshold must be positive")
	}
	if s.VAD.SilenceMs < 0 || s.VAD.VoiceMs < 0 {
		errs = append(errs, "vad durations must not be negative")
	}
	return errs
}

func validateWakeWordSettings(s *Settings) []string {
	var errs []string
	ww := &s.WakeWord
	if ww.Threshold < 0 || ww.Threshold > 1 {
		errs = append(errs, "wakeword.threshold must be between 0 and 1")
	}
	if ww.TriggerDurationMs < 0 {
		errs = append(errs, "wakeword.triggerdurationms must not be negative")
	}
	if ww.BackBufferMs < 0 || ww.BackBufferMs > 10000 {
		errs = append(errs, "wakeword.backbufferms must be between 0 and 10000")
	}
	if ww.Threads < 0 {
		errs = append(errs, "wakeword.threads must not be negative")
	}
	if ww.QueueSize <= 0 {
		errs = append(errs, "wakeword.queuesize must be positive")
	}
	if ww.InferenceIntervalMs < 0 {
		errs = append(errs, "wakeword.inferenceintervalms must not be negative")
	}
	if ww.Enabled && strings.TrimSpace(ww.ModelPath) == "" {
		errs = append(errs, "wakeword.modelpath is required when wake word detection is enabled")
	}
	return errs
}

func validateSessionSettings(s *Settings) []string {
	var errs []string
	if s.Session.SilenceTimeoutMs <= 0 {
		errs = append(errs, "session.silencetimeoutms must be positive")
	}
	if s.Session.MaxStreamMs <= s.Session.SilenceTimeoutMs {
		errs = append(errs, "session.maxstreamms must exceed session.silencetimeoutms")
	}
	if s.Session.CooldownMs < 0 {
		errs = append(errs, "session.cooldownms must not be negative")
	}
	return errs
}

func validateStreamSettings(s *Settings) []string {
	if !s.Stream.Enabled {
		return nil
	}
	u, err := url.Parse(s.Stream.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return []string{fmt.Sprintf("stream.url must be a ws:// or wss:// URL, got %q", s.Stream.URL)}
	}
	return nil
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	u, err := url.Parse(s.MQTT.Broker)
	if err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker must be a URL like tcp://host:1883, got %q", s.MQTT.Broker))
	}
	if strings.TrimSpace(s.MQTT.Topic) == "" {
		errs = append(errs, "mqtt.topic is required when MQTT is enabled")
	}
	return errs
}

func validateDatastoreSettings(s *Settings) []string {
	switch strings.ToLower(s.Datastore.Type) {
	case "sqlite":
		if s.Datastore.Path == "" {
			return []string{"datastore.path is required for sqlite"}
		}
	case "mysql":
		if s.Datastore.DSN == "" {
			return []string{"datastore.dsn is required for mysql"}
		}
	case "", "none":
	default:
		return []string{fmt.Sprintf("datastore.type must be sqlite, mysql or none, got %q", s.Datastore.Type)}
	}
	return nil
}

func validateListenAddresses(s *Settings) []string {
	var errs []string
	check := func(name, addr string) {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Sprintf("%s must be host:port, got %q", name, addr))
		}
	}
	if s.API.Enabled {
		check("api.listen", s.API.Listen)
	}
	if s.Telemetry.Enabled {
		check("telemetry.listen", s.Telemetry.Listen)
	}
	return errs
}
