package commands

import (
	"fmt"
	"time"

	"agenticdebugger/internal/models"

	"github.com/spf13/cobra"
)

var InstancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List every bridge instance known to the primary",
	RunE:  runInstances,
}

func init() {
	addConnectionFlags(InstancesCmd.Flags())
}

func runInstances(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	client, err := newBridgeClient(cfg)
	if err != nil {
		return err
	}

	var list struct {
		Instances []models.InstanceInfo `json:"instances"`
		Count     int                   `json:"count"`
	}
	if err := client.get("/instances", &list); err != nil {
		return err
	}

	fmt.Printf("📋 %d bridge instance(s) via %s\n", list.Count, client.info.BaseURL)
	fmt.Println()
	for i, inst := range list.Instances {
		role := "secondary"
		if inst.IsPrimary {
			role = "primary"
		}
		fmt.Printf("%d. %s (%s)\n", i+1, inst.ID, role)
		fmt.Printf("   Port: %d  PID: %d\n", inst.Port, inst.PID)
		if inst.SolutionName != "" {
			fmt.Printf("   Solution: %s\n", inst.SolutionName)
		}
		if !inst.IsPrimary {
			fmt.Printf("   Last seen: %s ago\n", time.Since(inst.LastSeen).Round(time.Second))
			fmt.Printf("   Proxy: %s/proxy/%s/\n", client.info.BaseURL, inst.ID)
		}
		fmt.Println()
	}
	return nil
}
