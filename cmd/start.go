package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netscope/internal/command"
)

var (
	startInterface string
	startFilter    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a capture session",
	Long: `Ask the daemon to start capturing on an interface.

Only one session can be active at a time; starting while a session is
running fails. An optional BPF filter narrows the captured traffic.`,
	Example: `  netscope start -i eth0
  netscope start -i eth0 -f "tcp port 443"`,
	Run: func(cmd *cobra.Command, args []string) {
		runStartCommand()
	},
}

func init() {
	startCmd.Flags().StringVarP(&startInterface, "interface", "i", "", "interface to capture on (required)")
	startCmd.Flags().StringVarP(&startFilter, "filter", "f", "", "BPF filter expression")
	startCmd.MarkFlagRequired("interface")
}

func runStartCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.CaptureStart(ctx, startInterface, startFilter)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("capture_start failed: %s", resp.Error.Message), nil)
	}

	if startFilter != "" {
		fmt.Printf("Capture started on %s (filter: %s)\n", startInterface, startFilter)
	} else {
		fmt.Printf("Capture started on %s\n", startInterface)
	}
}
