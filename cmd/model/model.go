package model

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/voicetrigger/internal/analysis"
	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/conf"
)

// Command creates the model command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the wake word model",
	}
	cmd.AddCommand(checkCommand(settings))
	return cmd
}

func checkCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the model and run the zero-input check",
		Long:  "Load the configured model, print its tensor layout and score an all-zero input. A high score on silence points to a biased or badly quantized model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := analysis.CheckModel(settings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model:    %s (%d bytes)\n", report.Info.Path, report.Info.SizeBytes)
			fmt.Fprintf(out, "CPU:      %s, %d threads\n", report.CPU.BrandName, report.Info.Threads)
			printTensor(cmd, "Input", report.Info.Input)
			printTensor(cmd, "Output", report.Info.Output)
			fmt.Fprintf(out, "Zero-input confidence: %.4f\n", report.ZeroConfidence)
			if report.Suspicious {
				return fmt.Errorf("zero-input confidence %.4f is higher than expected", report.ZeroConfidence)
			}
			fmt.Fprintln(out, "Model check passed")
			return nil
		},
	}
}

func printTensor(cmd *cobra.Command, label string, t classifier.TensorInfo) {
	fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s %s %v (%d elements, scale %g, zero point %d)\n",
		label+":", t.Name, t.Type, t.Shape, t.Elements, t.Quantization.Scale, t.Quantization.ZeroPoint)
}
