package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show platform health",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		Servers       int    `json:"servers"`
		Accounts      int    `json:"accounts"`
		QueueDepth    int    `json:"queue_depth"`
	}
	if err := client.get(ctx, "/api/v1/healthz", &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Status: %s\n", resp.Status)
		fmt.Printf("Uptime: %ds\n", resp.UptimeSeconds)
		fmt.Printf("Servers: %d\n", resp.Servers)
		fmt.Printf("Accounts: %d\n", resp.Accounts)
		fmt.Printf("Queue depth: %d\n", resp.QueueDepth)
	}
	return nil
}
