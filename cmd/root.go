// Package cmd wires the voicetrigger command line interface.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voicetrigger/cmd/config"
	"github.com/tphakala/voicetrigger/cmd/devices"
	"github.com/tphakala/voicetrigger/cmd/file"
	"github.com/tphakala/voicetrigger/cmd/model"
	"github.com/tphakala/voicetrigger/cmd/realtime"
	"github.com/tphakala/voicetrigger/internal/buildinfo"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. Settings are loaded
// before any sub-command runs and shared with it through the settings pointer.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var (
		configPath    string
		centralLogger *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "voicetrigger",
		Short:         "On-device wake word trigger",
		Long:          "Listen for a wake word and stream the following speech to a speech server.",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configPath); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		devices.Command(settings),
		model.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := loadSettings(configPath)
		if err != nil {
			return err
		}
		*settings = *loaded

		centralLogger, err = initialize(settings, build)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Sentry.Enabled {
			errors.FlushSentry(sentryFlushTimeout)
		}
		if centralLogger != nil {
			return centralLogger.Close()
		}
		return nil
	}

	return rootCmd
}

func loadSettings(configPath string) (*conf.Settings, error) {
	if configPath != "" {
		return conf.LoadFile(configPath)
	}
	return conf.Load()
}

// initialize sets up logging and error reporting from the loaded settings.
func initialize(settings *conf.Settings, build *buildinfo.Context) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(centralLogger)

	build.SetNodeID(settings.Main.NodeID)
	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, build.NodeID(), build.Release()); err != nil {
			centralLogger.Module("main").Warn("error reporting disabled", logger.Error(err))
		}
	}

	return centralLogger, nil
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, configPath *string) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(configPath, "config", "c", "", "Path to config file, default search paths are used when empty")
	rootCmd.PersistentFlags().String("model", "", "Path to the wake word model")
	rootCmd.PersistentFlags().Float64P("threshold", "t", 0, "Detection threshold between 0.0 and 1.0")

	bindings := map[string]string{
		"debug":     "debug",
		"model":     "wakeword.modelpath",
		"threshold": "wakeword.threshold",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
