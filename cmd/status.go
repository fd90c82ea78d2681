package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"icc.tech/netscope/internal/command"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and capture status",
	Long: `Query the daemon for its status and the active capture session.

Shows: daemon version and uptime, whether a session is running, the
interface and filter, and the session counters (frames captured, records
decoded, decode failures, records dropped).`,
	Run: func(cmd *cobra.Command, args []string) {
		runStatusCommand()
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text",
		"output format: text, json, or yaml")
}

func runStatusCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	daemonResp, err := client.DaemonStatus(ctx)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if daemonResp.Error != nil {
		exitWithError(fmt.Sprintf("daemon_status failed: %s", daemonResp.Error.Message), nil)
	}

	captureResp, err := client.CaptureStatus(ctx)
	if err != nil {
		exitWithError("failed to query capture status", err)
	}
	if captureResp.Error != nil {
		exitWithError(fmt.Sprintf("capture_status failed: %s", captureResp.Error.Message), nil)
	}

	combined := map[string]interface{}{
		"daemon":  daemonResp.Result,
		"capture": captureResp.Result,
	}

	switch statusOutput {
	case "json":
		out, err := json.MarshalIndent(combined, "", "  ")
		if err != nil {
			exitWithError("failed to format result", err)
		}
		fmt.Println(string(out))
	case "yaml":
		out, err := yaml.Marshal(combined)
		if err != nil {
			exitWithError("failed to format result", err)
		}
		fmt.Print(string(out))
	case "text":
		printStatusText(daemonResp.Result, captureResp.Result)
	default:
		exitWithError(fmt.Sprintf("unknown output format %q", statusOutput), nil)
	}
}

func printStatusText(daemonResult, captureResult interface{}) {
	dm, _ := daemonResult.(map[string]interface{})
	fmt.Printf("Daemon:  version %v, up %vs\n", dm["version"], dm["uptime_sec"])

	cm, _ := captureResult.(map[string]interface{})
	st, _ := cm["capture"].(map[string]interface{})
	if running, _ := st["running"].(bool); !running {
		fmt.Println("Capture: idle")
		if lastErr, ok := st["last_error"].(string); ok && lastErr != "" {
			fmt.Printf("Last error: %s\n", lastErr)
		}
		return
	}

	fmt.Printf("Capture: running on %v", st["interface"])
	if filter, ok := st["filter"].(string); ok && filter != "" {
		fmt.Printf(" (filter: %s)", filter)
	}
	fmt.Println()

	if counters, ok := st["counters"].(map[string]interface{}); ok {
		fmt.Printf("  frames captured:  %v\n", counters["frames_captured"])
		fmt.Printf("  records decoded:  %v\n", counters["records_decoded"])
		fmt.Printf("  decode failures:  %v\n", counters["decode_failures"])
	}
	fmt.Printf("  records dropped:  %v\n", cm["dropped"])
	if ks, ok := st["kernel_stats"].(map[string]interface{}); ok {
		fmt.Printf("  kernel received:  %v\n", ks["Received"])
		fmt.Printf("  kernel dropped:   %v\n", ks["Dropped"])
	}
}
