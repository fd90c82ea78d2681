package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netscope/internal/command"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active capture session",
	Long: `Ask the daemon to stop the active capture session.

The daemon joins the capture goroutine before answering, so once this
command returns no more records will be produced. Stopping when no session
is active succeeds quietly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.CaptureStop(context.Background())
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("capture_stop failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Capture stopped")
}
