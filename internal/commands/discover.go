package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var DiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show the primary bridge advertised on this machine",
	Long:  `Reads the discovery descriptor and checks that the primary it names answers.`,
	RunE:  runDiscover,
}

func init() {
	addConnectionFlags(DiscoverCmd.Flags())
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	client, err := newBridgeClient(cfg)
	if err != nil {
		return err
	}

	fmt.Println("📍 Agentic Debugger Bridge")
	fmt.Println()
	fmt.Printf("   Descriptor: %s\n", cfg.DiscoveryFile)
	fmt.Printf("   Base URL:   %s\n", client.info.BaseURL)
	fmt.Printf("   PID:        %d\n", client.info.PID)
	fmt.Printf("   Key header: %s\n", client.info.KeyHeader)
	fmt.Println()

	var info struct {
		InstanceID   string `json:"instanceId"`
		Version      string `json:"version"`
		Role         string `json:"role"`
		SolutionName string `json:"solutionName"`
	}
	if err := client.get("/", &info); err != nil {
		fmt.Println("❌ Primary is not answering")
		return err
	}

	fmt.Printf("✅ %s %s (%s)\n", info.Role, info.InstanceID, info.Version)
	if info.SolutionName != "" {
		fmt.Printf("   Solution: %s\n", info.SolutionName)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := client.get("/health", &health); err == nil {
		fmt.Printf("   Health:   %s\n", health.Status)
	} else {
		fmt.Printf("   Health:   %v\n", err)
	}
	return nil
}
