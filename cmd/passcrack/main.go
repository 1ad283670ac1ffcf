// Package main provides the entry point for the passcrack CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/passcrack/cmd/passcrack/commands"
	"github.com/Sumatoshi-tech/passcrack/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "passcrack",
		Short: "Passcrack - parallel OpenPGP passphrase recovery",
		Long: `Passcrack checks candidate passphrases against an OpenPGP secret key in parallel.

Commands:
  run       Check candidates from stdin or a wordlist
  config    Print the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, commands.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	os.Exit(commands.ExitCode(err))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "passcrack %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
