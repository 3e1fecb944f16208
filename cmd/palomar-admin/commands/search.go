package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palomarmail/palomar/mail"
)

var (
	searchAccount string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search an account's messages",
	Long: `Search every folder of an account for messages whose subject or
sender contains the query, case-insensitively.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchAccount, "account", "",
		"Account address (required)")
	searchCmd.MarkFlagRequired("account")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	query := strings.Join(args, " ")

	var resp struct {
		Address string `json:"address"`
		Query   string `json:"query"`
		Results []struct {
			Folder  string        `json:"folder"`
			Message *mail.Message `json:"message"`
		} `json:"results"`
		Count int `json:"count"`
	}
	path := accountPath(searchAccount, "/search") + "?q=" + url.QueryEscape(query)
	if err := client.get(ctx, path, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Count == 0 {
			fmt.Printf("No messages matching %q.\n", query)
			return nil
		}
		fmt.Printf("Messages matching %q (%d):\n\n", query, resp.Count)
		for _, r := range resp.Results {
			fmt.Printf("[%s] ", r.Folder)
			fmt.Print(formatMessage(r.Message))
			fmt.Println()
		}
	}
	return nil
}
