package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netscope/internal/command"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream decoded records from the active capture session",
	Long: `Subscribe to the live record stream of the active capture session and
print one record per line until interrupted.

A slow terminal does not stall the capture loop: records the watcher cannot
keep up with are skipped.`,
	Example: `  netscope watch
  netscope watch --json | jq .src`,
	Run: func(cmd *cobra.Command, args []string) {
		runWatchCommand()
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print records as JSON lines")
}

func runWatchCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	enc := json.NewEncoder(os.Stdout)
	err := client.Watch(ctx, func(rec command.RecordJSON) error {
		if watchJSON {
			return enc.Encode(rec)
		}
		_, err := fmt.Printf("%s:%d -> %s:%d %s %dB\n",
			rec.Src, rec.SrcPort, rec.Dst, rec.DstPort, rec.Protocol, rec.Length)
		return err
	})
	if err != nil && err != context.Canceled {
		exitWithError("watch failed", err)
	}
}
