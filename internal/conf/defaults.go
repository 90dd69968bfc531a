// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Default values shared with the components that consume them.
const (
	DefaultSampleRate      = 16000
	DefaultFrameSize       = 320
	DefaultThreshold       = 0.9
	DefaultTriggerDuration = 450
	DefaultBackBuffer      = 300
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "voicetrigger")
	viper.SetDefault("main.nodeid", "unknown")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/voicetrigger.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("audio.source", "")
	viper.SetDefault("audio.backend", "")
	viper.SetDefault("audio.samplerate", DefaultSampleRate)
	viper.SetDefault("audio.framesize", DefaultFrameSize)
	viper.SetDefault("audio.gain", 1.0)
	viper.SetDefault("audio.bufferframes", 50)
	viper.SetDefault("audio.export.enabled", false)
	viper.SetDefault("audio.export.path", "sessions/")

	viper.SetDefault("vad.sensitivity", 0.5)
	viper.SetDefault("vad.threshold", 0.01)
	viper.SetDefault("vad.silencems", 200)
	viper.SetDefault("vad.voicems", 100)

	viper.SetDefault("wakeword.enabled", true)
	viper.SetDefault("wakeword.modelpath", "model/wake_word.tflite")
	viper.SetDefault("wakeword.threshold", DefaultThreshold)
	viper.SetDefault("wakeword.triggerdurationms", DefaultTriggerDuration)
	viper.SetDefault("wakeword.backbufferms", DefaultBackBuffer)
	viper.SetDefault("wakeword.uselargememory", true)
	viper.SetDefault("wakeword.threads", 0)
	viper.SetDefault("wakeword.queuesize", 16)
	viper.SetDefault("wakeword.inferenceintervalms", 30)
	viper.SetDefault("wakeword.selfcheck", true)

	viper.SetDefault("memory.internallimit", 320*1024)

	viper.SetDefault("session.silencetimeoutms", 700)
	viper.SetDefault("session.maxstreamms", 8000)
	viper.SetDefault("session.cooldownms", 400)
	viper.SetDefault("session.room", "default")

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.url", "wss://assistant.lan/stt")
	viper.SetDefault("stream.reconnectdelayms", 5000)
	viper.SetDefault("stream.maxretries", 10)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "voicetrigger")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.webhook.enabled", false)
	viper.SetDefault("notification.webhook.url", "")
	viper.SetDefault("notification.timeoutseconds", 10)

	viper.SetDefault("datastore.type", "sqlite")
	viper.SetDefault("datastore.path", "voicetrigger.db")
	viper.SetDefault("datastore.dsn", "")
	viper.SetDefault("datastore.dsnfile", "")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.listen", "127.0.0.1:8080")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.dsnfile", "")

	viper.SetDefault("feedback.windowseconds", 30)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.intervalseconds", 60)
	viper.SetDefault("monitor.memorycritical", 90.0)
	viper.SetDefault("monitor.diskcritical", 95.0)
}
