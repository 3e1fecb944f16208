package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/palomarmail/palomar/mail"
)

var (
	inboxAccount string
	inboxFolder  string
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List messages in a folder",
	Long:  `Display the messages of one folder of an account. Defaults to INBOX.`,
	RunE:  runInbox,
}

func init() {
	inboxCmd.Flags().StringVar(&inboxAccount, "account", "",
		"Account address (required)")
	inboxCmd.Flags().StringVar(&inboxFolder, "folder", "INBOX",
		"Folder path, e.g. Archive/2024")
	inboxCmd.MarkFlagRequired("account")
}

func runInbox(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Address  string          `json:"address"`
		Folder   string          `json:"folder"`
		Messages []*mail.Message `json:"messages"`
		Count    int             `json:"count"`
	}
	path := accountPath(inboxAccount, "/messages") +
		"?folder=" + url.QueryEscape(inboxFolder)
	if err := client.get(ctx, path, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Count == 0 {
			fmt.Printf("Folder %s of %s is empty.\n", resp.Folder, resp.Address)
			return nil
		}
		fmt.Printf("Folder %s of %s (%d messages):\n\n",
			resp.Folder, resp.Address, resp.Count)
		for _, msg := range resp.Messages {
			fmt.Print(formatMessage(msg))
			fmt.Println()
		}
	}
	return nil
}
