package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"icc.tech/netscope/internal/daemon"
)

// daemonCmd represents the daemon command.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the netscope daemon in foreground",
	Long: `Run the netscope daemon process in foreground.

The daemon will:
  1. Load configuration from the config file (or built-in defaults)
  2. Initialize logging and metrics
  3. Start the UDS control server for CLI commands
  4. Wait for capture_start commands
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			slog.Error("daemon failed", "error", err)
			os.Exit(1)
		}
	},
}

var pidFile string

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default: from config)")
}

func runDaemon() error {
	d, err := daemon.New(configFile, socketPath, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	return d.Run()
}
