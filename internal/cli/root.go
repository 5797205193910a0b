// Package cli implements the ModESP command-line interface using Cobra.
// Each subcommand operates against a Daemon it boots itself: long-running
// commands (serve) call Serve and block, short-lived ones (status,
// config) boot, read or write, then Close.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "modesp",
	Short: "ModESP — refrigeration and climate controller",
	Long: `ModESP is the firmware-core controller runtime.
It schedules sensor and actuator modules, persists configuration, and
exposes a diagnostics server, all from a single process.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
