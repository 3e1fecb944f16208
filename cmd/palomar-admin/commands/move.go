package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	moveAccount string
	moveFrom    string
	moveTo      string
)

var moveCmd = &cobra.Command{
	Use:   "move <message-id>",
	Short: "Move a message between folders",
	Args:  cobra.ExactArgs(1),
	RunE:  runMove,
}

func init() {
	moveCmd.Flags().StringVar(&moveAccount, "account", "",
		"Account address (required)")
	moveCmd.Flags().StringVar(&moveFrom, "from", "",
		"Source folder path (required)")
	moveCmd.Flags().StringVar(&moveTo, "to", "",
		"Destination folder path (required)")
	moveCmd.MarkFlagRequired("account")
	moveCmd.MarkFlagRequired("from")
	moveCmd.MarkFlagRequired("to")
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		MessageID string `json:"message_id"`
		From      string `json:"from"`
		To        string `json:"to"`
		Message   string `json:"message"`
	}
	path := accountPath(moveAccount, "/messages/"+url.PathEscape(args[0])+"/move")
	req := map[string]string{"from": moveFrom, "to": moveTo}
	if err := client.post(ctx, path, req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Moved %s: %s -> %s\n", resp.MessageID, resp.From, resp.To)
	}
	return nil
}
