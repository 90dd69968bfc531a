// config.go: settings struct for voicetrigger and functions to load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings identifies this node.
type MainSettings struct {
	Name   string // human readable node name
	NodeID string // node identifier used in MQTT topics and telemetry
}

// AudioSettings contains capture and framing settings.
type AudioSettings struct {
	Source       string  // capture device name or ID, empty for system default
	Backend      string  // malgo backend override: alsa, pulseaudio, wasapi, coreaudio; empty for auto
	SampleRate   int     // capture sample rate in Hz, must be 16000
	FrameSize    int     // samples per frame delivered to the pipeline
	Gain         float64 // linear input gain applied before processing
	BufferFrames int     // capture handoff ring size in frames
	Export       struct {
		Enabled bool   // write streamed sessions to WAV files
		Path    string // clip directory
	}
}

// VADSettings configures the voice activity detector.
type VADSettings struct {
	Sensitivity float64 // 0..1, higher detects quieter speech
	Threshold   float64 // base energy threshold
	SilenceMs   int     // silence needed to drop the voice state
	VoiceMs     int     // voice needed to raise the voice state
}

// WakeWordSettings configures the trigger phrase detector.
type WakeWordSettings struct {
	Enabled             bool
	ModelPath           string  // path to the .tflite classifier
	Threshold           float64 // detection threshold 0..1
	TriggerDurationMs   int     // time confidence must stay above threshold
	BackBufferMs        int     // pre-trigger audio kept for streaming
	UseLargeMemory      bool    // place buffers in the large memory region
	Threads             int     // interpreter threads, 0 for automatic
	QueueSize           int     // feature-ready signal queue capacity
	InferenceIntervalMs int     // minimum time between inferences
	SelfCheck           bool    // run the zero-input check at startup
}

// MemorySettings bounds the fast memory region.
type MemorySettings struct {
	InternalLimit int64 // bytes available to the internal arena, 0 for unlimited
}

// SessionSettings configures the listening cycle.
type SessionSettings struct {
	SilenceTimeoutMs int    // end streaming after this much silence
	MaxStreamMs      int    // hard cap on a single session
	CooldownMs       int    // pause before listening again
	Room             string // room name announced to the speech server
}

// StreamSettings configures the speech server connection.
type StreamSettings struct {
	Enabled          bool
	URL              string // ws:// or wss:// endpoint
	ReconnectDelayMs int    // delay before redialling a dropped connection
	MaxRetries       int    // dial attempts per session
}

// MQTTSettings contains settings for MQTT integration.
type MQTTSettings struct {
	Enabled      bool   // true to enable MQTT
	Broker       string // MQTT (tcp://host:port)
	Topic        string // base topic, events go to <topic>/detection and <topic>/session
	Username     string // MQTT username
	Password     string // MQTT password, may reference ${ENV} variables
	PasswordFile string // file holding the password, takes precedence over Password
	Retain       bool   // retain published messages
}

// NotificationSettings configures shoutrrr notifications.
type NotificationSettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs
	Webhook struct {
		Enabled bool
		URL     string
	}
	TimeoutSeconds int
}

// DatastoreSettings selects the detection history backend.
type DatastoreSettings struct {
	Type    string // sqlite or mysql
	Path    string // sqlite database file
	DSN     string // mysql data source name
	DSNFile string // file holding the DSN, takes precedence over DSN
}

// APISettings configures the control and status HTTP API.
type APISettings struct {
	Enabled bool
	Listen  string // host:port
}

// TelemetrySettings contains settings for telemetry.
type TelemetrySettings struct {
	Enabled bool   // true to enable Prometheus compatible telemetry endpoint
	Listen  string // IP address and port to listen on
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
	DSNFile string // file holding the DSN, takes precedence over DSN
}

// FeedbackSettings configures false positive reporting.
type FeedbackSettings struct {
	WindowSeconds int // how long after a detection it can be flagged as false positive
}

// MonitorSettings configures the system resource monitor.
type MonitorSettings struct {
	Enabled         bool
	IntervalSeconds int
	MemoryCritical  float64 // host memory usage percent that raises an alert
	DiskCritical    float64 // clip directory disk usage percent that raises an alert
}

// Settings contains all configuration options for voicetrigger.
type Settings struct {
	Debug bool // true to enable debug mode

	Main         MainSettings
	Logging      logger.LoggingConfig
	Audio        AudioSettings
	VAD          VADSettings
	WakeWord     WakeWordSettings
	Memory       MemorySettings
	Session      SessionSettings
	Stream       StreamSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Datastore    DatastoreSettings
	API          APISettings
	Telemetry    TelemetrySettings
	Sentry       SentrySettings
	Feedback     FeedbackSettings
	Monitor      MonitorSettings

	Input struct {
		Path     string // audio file for the file command
		Realtime bool   // pace file playback at the capture rate
	} `yaml:"-"`
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	return unmarshalSettings()
}

// LoadFile reads settings from an explicit config file path instead of the default
// search locations.
func LoadFile(path string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	viper.SetConfigFile(path)
	setDefaultConfig()
	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			FileContext(path, 0).
			Context("operation", "read_config").
			Build()
	}

	return unmarshalSettings()
}

// unmarshalSettings decodes the viper state, validates it and stores the result.
// Caller holds settingsMutex.
func unmarshalSettings() (*Settings, error) {
	settings := &Settings{}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // config is not secret until edited
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default config.yaml.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read_embedded_config").
			Build()
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				GetLogger().Error("error loading settings", logger.Error(err))
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// SaveSettings writes the current settings back to the active config file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	if settingsInstance == nil {
		return errors.Newf("settings not loaded").Category(errors.CategoryState).Build()
	}

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	settingsCopy := *settingsInstance
	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	GetLogger().Info("settings saved", logger.String("path", configPath))
	return nil
}

// SaveYAMLConfig writes settings to configPath atomically. Comments in an existing
// file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// Dump renders settings as YAML.
func Dump(settings *Settings) ([]byte, error) {
	return yaml.Marshal(settings)
}

// resolveSecrets expands environment references in credentials and reads
// credentials kept in files. Only enabled integrations are resolved.
func resolveSecrets(s *Settings) error {
	resolve := func(key, file string, value *string) error {
		resolved, err := secrets.Resolve(file, *value)
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("setting", key).
				Build()
		}
		*value = resolved
		return nil
	}

	if s.MQTT.Enabled {
		if err := resolve("mqtt.password", s.MQTT.PasswordFile, &s.MQTT.Password); err != nil {
			return err
		}
	}
	if s.Sentry.Enabled {
		if err := resolve("sentry.dsn", s.Sentry.DSNFile, &s.Sentry.DSN); err != nil {
			return err
		}
	}
	if strings.EqualFold(s.Datastore.Type, "mysql") {
		if err := resolve("datastore.dsn", s.Datastore.DSNFile, &s.Datastore.DSN); err != nil {
			return err
		}
	}
	if s.Notification.Enabled {
		for i := range s.Notification.URLs {
			if err := resolve("notification.urls", "", &s.Notification.URLs[i]); err != nil {
				return err
			}
		}
	}
	if s.Notification.Webhook.Enabled {
		if err := resolve("notification.webhook.url", "", &s.Notification.Webhook.URL); err != nil {
			return err
		}
	}
	return nil
}
