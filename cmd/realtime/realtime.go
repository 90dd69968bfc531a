package realtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voicetrigger/internal/analysis"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/logger"
)

// Command creates the realtime command for live capture.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Listen for the wake word in realtime",
		Long:  "Capture audio from the configured device, detect the wake word and stream speech to the speech server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go reopenLogsOnHangup(ctx)
			return analysis.Realtime(ctx, settings)
		},
	}

	// Set up flags specific to the 'realtime' command
	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// reopenLogsOnHangup reopens the log files on SIGHUP so external rotation
// tools can move them.
func reopenLogsOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logger.Global().ReopenLogFiles(); err != nil {
				logger.Global().Module("main").Warn("reopening log files failed", logger.Error(err))
			}
		}
	}
}

// setupFlags configures flags specific to the realtime command. Flags left
// unset keep the configured value.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("source", "", "Audio capture source (\"sysdefault\", \"USB Audio\", device ID, etc.)")
	cmd.Flags().String("backend", "", "Audio backend override (alsa, pulseaudio, wasapi, coreaudio)")
	cmd.Flags().String("stream", "", "Speech server URL (ws:// or wss://)")
	cmd.Flags().String("listen", "", "Listen address and port of the control API")
	cmd.Flags().String("clippath", "", "Path to save session audio clips")

	bindings := map[string]string{
		"source":   "audio.source",
		"backend":  "audio.backend",
		"stream":   "stream.url",
		"listen":   "api.listen",
		"clippath": "audio.export.path",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	return nil
}
