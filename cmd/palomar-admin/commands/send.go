package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palomarmail/palomar/delivery"
)

var (
	sendFrom      string
	sendTo        string
	sendSubject   string
	sendBody      string
	sendPriority  string
	sendRawFile   string
	sendRecipient string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message",
	Long: `Send a message through the platform's delivery pipeline.

Either compose one with --from/--to/--subject/--body, or submit a raw
RFC 822 message from a file with --raw (optionally overriding the
recipient with --recipient).`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "",
		"Sender address (required unless --raw)")
	sendCmd.Flags().StringVar(&sendTo, "to", "",
		"Recipient address (required unless --raw)")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "",
		"Message subject")
	sendCmd.Flags().StringVar(&sendBody, "body", "",
		"Message body")
	sendCmd.Flags().StringVar(&sendPriority, "priority", "medium",
		"Priority: high, medium, low")
	sendCmd.Flags().StringVar(&sendRawFile, "raw", "",
		"Path to a raw RFC 822 message to submit instead")
	sendCmd.Flags().StringVar(&sendRecipient, "recipient", "",
		"Recipient override for --raw submissions")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var result delivery.Result

	if sendRawFile != "" {
		raw, err := os.ReadFile(sendRawFile)
		if err != nil {
			return fmt.Errorf("read raw message: %w", err)
		}
		if err := client.postRaw(ctx, "/api/v1/messages/raw", raw, sendRecipient, &result); err != nil {
			return err
		}
	} else {
		if sendFrom == "" || sendTo == "" {
			return fmt.Errorf("--from and --to are required unless --raw is given")
		}
		req := map[string]string{
			"from":     sendFrom,
			"to":       sendTo,
			"subject":  sendSubject,
			"body":     sendBody,
			"priority": sendPriority,
		}
		if err := client.post(ctx, "/api/v1/messages", req, &result); err != nil {
			return err
		}
	}

	switch outputFormat {
	case "json":
		return outputJSON(result)
	default:
		if result.Discarded {
			fmt.Printf("Message discarded by filters (delivery %s)\n",
				result.DeliveryID)
			return nil
		}
		fmt.Printf("Message delivered! ID: %s, Folder: %s, Tier: %s\n",
			result.MessageID, result.Folder, result.Tier)
		if len(result.Route) > 1 {
			fmt.Printf("  Route: %s\n", strings.Join(result.Route, " -> "))
		}
		if result.Queued {
			fmt.Println("  Queued for urgent dispatch")
		}
	}
	return nil
}
