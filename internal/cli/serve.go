package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Zapadenec1982/ModESP-sub004/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Diagnostics listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot every module and serve diagnostics until stopped",
	Long:  `Start the scheduler, heartbeat monitor, health checker and diagnostics HTTP server, blocking until a termination signal arrives.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}

	if serveListenAddr != "" {
		d.Config.Diag.ListenAddr = serveListenAddr
	}

	return d.Serve(context.Background())
}
