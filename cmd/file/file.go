package file

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/voicetrigger/internal/analysis"
	"github.com/tphakala/voicetrigger/internal/conf"
)

// Command creates the file command for analyzing a single audio file.
func Command(settings *conf.Settings) *cobra.Command {
	var realtime bool

	cmd := &cobra.Command{
		Use:   "file [input.wav|input.flac]",
		Short: "Analyze an audio file",
		Long:  "Run wake word detection over a 16 kHz audio file and list the confirmed detections.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Input.Path = args[0]
			settings.Input.Realtime = realtime

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := analysis.File(ctx, settings, analysis.FileOptions{})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "Play the file back at capture speed")

	return cmd
}

// displayPrecision rounds offsets and durations in the report.
const displayPrecision = 10 * time.Millisecond

func printResult(out io.Writer, result *analysis.FileResult) error {
	fmt.Fprintf(out, "%s: %s analyzed, %d detection(s), %d session(s)\n",
		result.Path, result.Duration.Round(displayPrecision), len(result.Detections), result.Sessions)
	if len(result.Detections) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tCONFIDENCE\tLATENCY\tID")
	for _, d := range result.Detections {
		fmt.Fprintf(w, "%s\t%.3f\t%dms\t%s\n", d.Offset.Round(displayPrecision), d.Confidence, d.LatencyMs, d.ID)
	}
	return w.Flush()
}
