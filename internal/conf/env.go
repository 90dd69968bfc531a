// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.nodeid", "VOICETRIGGER_NODE_ID", nil},
		{"wakeword.modelpath", "VOICETRIGGER_MODEL_PATH", nil},
		{"wakeword.threshold", "VOICETRIGGER_THRESHOLD", validateEnvUnitFloat},
		{"wakeword.triggerdurationms", "VOICETRIGGER_TRIGGER_MS", validateEnvNonNegativeInt},
		{"wakeword.threads", "VOICETRIGGER_THREADS", validateEnvNonNegativeInt},
		{"vad.sensitivity", "VOICETRIGGER_VAD_SENSITIVITY", validateEnvUnitFloat},
		{"audio.source", "VOICETRIGGER_AUDIO_SOURCE", nil},
		{"stream.url", "VOICETRIGGER_STREAM_URL", nil},
		{"mqtt.broker", "VOICETRIGGER_MQTT_BROKER", nil},
		{"mqtt.username", "VOICETRIGGER_MQTT_USERNAME", nil},
		{"mqtt.password", "VOICETRIGGER_MQTT_PASSWORD", nil},
		{"mqtt.passwordfile", "VOICETRIGGER_MQTT_PASSWORD_FILE", nil},
		{"sentry.dsn", "VOICETRIGGER_SENTRY_DSN", nil},
		{"datastore.dsn", "VOICETRIGGER_DATASTORE_DSN", nil},
	}
}

// bindEnvVars binds environment overrides and reports values that fail validation.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvUnitFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
