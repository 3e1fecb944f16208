package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/palomarmail/palomar/mail"
)

var (
	readAccount string
)

var readCmd = &cobra.Command{
	Use:   "read <message-id>",
	Short: "Read one message in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func init() {
	readCmd.Flags().StringVar(&readAccount, "account", "",
		"Account address (required)")
	readCmd.MarkFlagRequired("account")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Folder  string        `json:"folder"`
		Message *mail.Message `json:"message"`
	}
	path := accountPath(readAccount, "/messages/"+url.PathEscape(args[0]))
	if err := client.get(ctx, path, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Print(formatMessageFull(resp.Folder, resp.Message))
	}
	return nil
}
