// Package cmd implements CLI commands using the cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netscope",
	Short: "Netscope - live packet capture daemon with a local control CLI",
	Long: `Netscope captures live network traffic on one interface at a time,
decodes IPv4 frames into compact flow records, and streams them to local
subscribers.

The daemon exposes a JSON-RPC control socket; this CLI talks to it:
  netscope daemon            run the capture daemon in foreground
  netscope start -i eth0     start capturing on an interface
  netscope watch             stream decoded records to stdout
  netscope stop              stop the active capture session`,
	Version: "0.1.0",
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/netscope.sock",
		"daemon socket path")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(devicesCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
