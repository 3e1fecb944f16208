package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palomarmail/palomar/deliveryqueue"
)

var (
	dispatchMax int
)

// queueCmd is the parent command for dispatch queue subcommands.
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drive the dispatch queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runQueueStats,
}

var queueDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch queued entries now",
	RunE:  runQueueDispatch,
}

func init() {
	queueDispatchCmd.Flags().IntVarP(&dispatchMax, "max", "n", 10,
		"Maximum number of entries to dispatch")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueDispatchCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var stats deliveryqueue.Stats
	if err := client.get(ctx, "/api/v1/queue", &stats); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(stats)
	default:
		fmt.Printf("Dispatch queue: %d entries\n", stats.Total)
		fmt.Printf("  High: %d\n", stats.High)
		fmt.Printf("  Medium: %d\n", stats.Medium)
		fmt.Printf("  Low: %d\n", stats.Low)
		if stats.Next != nil {
			fmt.Printf("  Next: %s to %s (%s)\n",
				stats.Next.MessageID, stats.Next.Recipient, stats.Next.Tier)
		}
	}
	return nil
}

func runQueueDispatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Dispatched int                    `json:"dispatched"`
		Entries    []*deliveryqueue.Entry `json:"entries"`
	}
	req := map[string]int{"max": dispatchMax}
	if err := client.post(ctx, "/api/v1/queue/dispatch", req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Dispatched == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		fmt.Printf("Dispatched %d entries:\n", resp.Dispatched)
		for _, e := range resp.Entries {
			fmt.Printf("  [%s] %s to %s\n", e.Tier, e.MessageID, e.Recipient)
		}
	}
	return nil
}
