package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/arpfuzzer/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the arpfuzzer daemon in foreground",
	Long: `Run the arpfuzzer daemon process in foreground.

The daemon will:
  1. Load configuration and initialize logging and metrics
  2. Open the raw socket on the configured interface
  3. Start the capture pipeline (if capture.enabled)
  4. Serve JSON-RPC commands on the control socket (see "arpfuzzer ctl")
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if cmd.Flags().Changed("socket") {
			cfg.Control.Socket = serveSocket
		}

		d := daemon.New(cfg, configPath())
		if err := d.Start(); err != nil {
			slog.Error("daemon failed", "error", err)
			os.Exit(1)
		}
		if err := d.Run(); err != nil {
			slog.Error("daemon failed", "error", err)
			os.Exit(1)
		}
	},
}

var serveSocket string

func init() {
	serveCmd.Flags().StringVarP(&serveSocket, "socket", "s", "", "control socket path, overrides the config file")
}
