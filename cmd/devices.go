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

var devicesOutput string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capturable network interfaces",
	Long:  `Ask the daemon for the network interfaces it can capture on.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDevicesCommand()
	},
}

func init() {
	devicesCmd.Flags().StringVarP(&devicesOutput, "output", "o", "text",
		"output format: text, json, or yaml")
}

func runDevicesCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.DevicesList(context.Background())
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("devices_list failed: %s", resp.Error.Message), nil)
	}

	switch devicesOutput {
	case "json":
		out, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			exitWithError("failed to format result", err)
		}
		fmt.Println(string(out))
	case "yaml":
		out, err := yaml.Marshal(resp.Result)
		if err != nil {
			exitWithError("failed to format result", err)
		}
		fmt.Print(string(out))
	case "text":
		printDevicesText(resp.Result)
	default:
		exitWithError(fmt.Sprintf("unknown output format %q", devicesOutput), nil)
	}
}

func printDevicesText(result interface{}) {
	rm, _ := result.(map[string]interface{})
	devs, _ := rm["devices"].([]interface{})
	if len(devs) == 0 {
		fmt.Println("No capturable devices found")
		return
	}
	for _, d := range devs {
		dev, _ := d.(map[string]interface{})
		fmt.Printf("%v", dev["name"])
		if desc, ok := dev["description"].(string); ok && desc != "" {
			fmt.Printf("  (%s)", desc)
		}
		if addrs, ok := dev["addresses"].([]interface{}); ok && len(addrs) > 0 {
			fmt.Printf("  %v", addrs)
		}
		fmt.Println()
	}
}
