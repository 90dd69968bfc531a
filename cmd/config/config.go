package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voicetrigger/internal/conf"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
	}
	cmd.AddCommand(dumpCommand(settings), pathCommand())
	return cmd
}

func dumpCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the merged configuration as YAML with secrets masked",
		Long:  "Print the configuration after defaults, the config file, environment variables and flags are merged.",
		RunE: func(cmd *cobra.Command, args []string) error {
			masked := *settings
			if masked.MQTT.Password != "" {
				masked.MQTT.Password = "********"
			}
			data, err := conf.Dump(&masked)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func pathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path of the config file in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), viper.ConfigFileUsed())
			return err
		},
	}
}
