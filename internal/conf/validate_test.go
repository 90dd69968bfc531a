package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Audio = AudioSettings{SampleRate: 16000, FrameSize: 320, Gain: 1, BufferFrames: 50}
	s.VAD = VADSettings{Sensitivity: 0.5, Threshold: 0.01, SilenceMs: 200, VoiceMs: 100}
	s.WakeWord = WakeWordSettings{
		Enabled:             true,
		ModelPath:           "model.tflite",
		Threshold:           0.9,
		TriggerDurationMs:   450,
		BackBufferMs:        300,
		QueueSize:           16,
		InferenceIntervalMs: 30,
	}
	s.Session = SessionSettings{SilenceTimeoutMs: 700, MaxStreamMs: 8000, CooldownMs: 400}
	s.Datastore = DatastoreSettings{Type: "sqlite", Path: "test.db"}
	s.API = APISettings{Enabled: true, Listen: "127.0.0.1:8080"}
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"sample rate", func(s *Settings) { s.Audio.SampleRate = 48000 }, "audio.samplerate"},
		{"frame size", func(s *Settings) { s.Audio.FrameSize = 0 }, "audio.framesize"},
		{"gain", func(s *Settings) { s.Audio.Gain = 0 }, "audio.gain"},
		{"vad sensitivity", func(s *Settings) { s.VAD.Sensitivity = 1.2 }, "vad.sensitivity"},
		{"vad threshold", func(s *Settings) { s.VAD.Threshold = 0 }, "vad.threshold"},
		{"threshold", func(s *Settings) { s.WakeWord.Threshold = -0.1 }, "wakeword.threshold"},
		{"queue", func(s *Settings) { s.WakeWord.QueueSize = 0 }, "wakeword.queuesize"},
		{"model path", func(s *Settings) { s.WakeWord.ModelPath = " " }, "wakeword.modelpath"},
		{"model path disabled", func(s *Settings) { s.WakeWord = WakeWordSettings{QueueSize: 16} }, ""},
		{"session", func(s *Settings) { s.Session.MaxStreamMs = 500 }, "session.maxstreamms"},
		{"stream url", func(s *Settings) { s.Stream = StreamSettings{Enabled: true, URL: "http://x"} }, "stream.url"},
		{"stream ok", func(s *Settings) { s.Stream = StreamSettings{Enabled: true, URL: "wss://a.lan/stt"} }, ""},
		{"mqtt broker", func(s *Settings) { s.MQTT = MQTTSettings{Enabled: true, Broker: "nohost", Topic: "t"} }, "mqtt.broker"},
		{"mqtt topic", func(s *Settings) { s.MQTT = MQTTSettings{Enabled: true, Broker: "tcp://b:1883"} }, "mqtt.topic"},
		{"datastore type", func(s *Settings) { s.Datastore.Type = "redis" }, "datastore.type"},
		{"mysql dsn", func(s *Settings) { s.Datastore = DatastoreSettings{Type: "mysql"} }, "datastore.dsn"},
		{"api listen", func(s *Settings) { s.API.Listen = "8080" }, "api.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
