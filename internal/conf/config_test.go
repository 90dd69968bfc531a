package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadFromString(t *testing.T, content string) (*Settings, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return LoadFile(writeConfig(t, content))
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	settings, err := loadFromString(t, "main:\n  nodeid: kitchen\n")
	require.NoError(t, err)

	assert.Equal(t, "kitchen", settings.Main.NodeID)
	assert.Equal(t, DefaultSampleRate, settings.Audio.SampleRate)
	assert.Equal(t, DefaultFrameSize, settings.Audio.FrameSize)
	assert.InDelta(t, DefaultThreshold, settings.WakeWord.Threshold, 1e-9)
	assert.Equal(t, DefaultTriggerDuration, settings.WakeWord.TriggerDurationMs)
	assert.Equal(t, DefaultBackBuffer, settings.WakeWord.BackBufferMs)
	assert.True(t, settings.WakeWord.UseLargeMemory)
	assert.Equal(t, 16, settings.WakeWord.QueueSize)
	assert.Equal(t, 30, settings.WakeWord.InferenceIntervalMs)
	assert.InDelta(t, 0.5, settings.VAD.Sensitivity, 1e-9)
	assert.Equal(t, 700, settings.Session.SilenceTimeoutMs)
	assert.Equal(t, 8000, settings.Session.MaxStreamMs)
	assert.Equal(t, 400, settings.Session.CooldownMs)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Same(t, settings, GetSettings())
}

func TestEmbeddedDefaultConfigIsValid(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)

	settings, err := loadFromString(t, string(data))
	require.NoError(t, err)
	assert.Equal(t, "unknown", settings.Main.NodeID)
	assert.Equal(t, "wss://assistant.lan/stt", settings.Stream.URL)
	assert.Equal(t, int64(327680), settings.Memory.InternalLimit)
}

func TestLoadFileRejectsInvalidSettings(t *testing.T) {
	_, err := loadFromString(t, "wakeword:\n  threshold: 1.5\naudio:\n  samplerate: 44100\n")
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, err.Error(), "wakeword.threshold")
}

func TestLoadFileMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("VOICETRIGGER_THRESHOLD", "0.75")
	t.Setenv("VOICETRIGGER_NODE_ID", "hallway")

	settings, err := loadFromString(t, "wakeword:\n  threshold: 0.9\n")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, settings.WakeWord.Threshold, 1e-9)
	assert.Equal(t, "hallway", settings.Main.NodeID)
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("VOICETRIGGER_THRESHOLD", "loud")
	t.Setenv("VOICETRIGGER_THREADS", "-2")

	err := bindEnvVars()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOICETRIGGER_THRESHOLD")
	assert.Contains(t, err.Error(), "VOICETRIGGER_THREADS")
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings, err := loadFromString(t, "")
	require.NoError(t, err)

	settings.WakeWord.Threshold = 0.8
	settings.Session.Room = "kitchen"
	settings.Notification.URLs = []string{"ntfy://ntfy.sh/speaker"}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	viper.Reset()
	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, reloaded.WakeWord.Threshold, 1e-9)
	assert.Equal(t, "kitchen", reloaded.Session.Room)
	assert.Equal(t, []string{"ntfy://ntfy.sh/speaker"}, reloaded.Notification.URLs)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be cleaned up")
}

func TestDump(t *testing.T) {
	settings, err := loadFromString(t, "")
	require.NoError(t, err)

	out, err := Dump(settings)
	require.NoError(t, err)
	assert.Contains(t, string(out), "triggerdurationms: 450")
	assert.Contains(t, string(out), "default_level: info")
	assert.NotContains(t, string(out), "input:")
}

func TestLoadFileResolvesSecrets(t *testing.T) {
	t.Setenv("VT_TEST_MQTT_PASSWORD", "from-env")
	dsnFile := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("https://key@sentry.example/1\n"), 0o600))

	settings, err := loadFromString(t, "mqtt:\n  enabled: true\n  password: ${VT_TEST_MQTT_PASSWORD}\n"+
		"sentry:\n  enabled: true\n  dsnfile: "+dsnFile+"\n")
	require.NoError(t, err)
	assert.Equal(t, "from-env", settings.MQTT.Password)
	assert.Equal(t, "https://key@sentry.example/1", settings.Sentry.DSN)
}

func TestLoadFileReportsMissingSecret(t *testing.T) {
	_, err := loadFromString(t, "mqtt:\n  enabled: true\n  password: ${VT_TEST_UNSET_PASSWORD}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VT_TEST_UNSET_PASSWORD")
}
