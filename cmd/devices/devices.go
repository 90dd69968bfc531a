package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/voicetrigger/internal/audiocore/sources/malgo"
	"github.com/tphakala/voicetrigger/internal/conf"
)

// Command creates the devices command that lists capture devices.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "List the capture devices available to the configured audio backend. Any listed name or ID can be used as audio.source.",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := malgo.ListDevices(settings.Audio.Backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tDEFAULT\tNAME\tID")
			for _, d := range devices {
				def := ""
				if d.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, def, d.Name, d.ID)
			}
			return w.Flush()
		},
	}
}
