package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/passcrack/pkg/config"
)

// NewConfigCommand creates the config command, which prints the effective configuration.
func NewConfigCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after defaults, the config file and PASSCRACK_* environment variables are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			return cfg.Dump(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default: .passcrack.yaml in . or $HOME)")

	return cmd
}
