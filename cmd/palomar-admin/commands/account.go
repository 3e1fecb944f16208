package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	accountAddress string
	accountServer  string
)

// accountCmd is the parent command for account management subcommands.
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage platform accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new account on a server",
	RunE:  runAccountCreate,
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Deregister an account",
	RunE:  runAccountDelete,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered accounts",
	RunE:  runAccountList,
}

func init() {
	accountCreateCmd.Flags().StringVar(&accountAddress, "address", "",
		"Account address (required)")
	accountCreateCmd.Flags().StringVar(&accountServer, "server", "",
		"Home server ID (required)")
	accountCreateCmd.MarkFlagRequired("address")
	accountCreateCmd.MarkFlagRequired("server")

	accountDeleteCmd.Flags().StringVar(&accountAddress, "address", "",
		"Account address (required)")
	accountDeleteCmd.MarkFlagRequired("address")

	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountDeleteCmd)
	accountCmd.AddCommand(accountListCmd)
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Address string `json:"address"`
		Server  string `json:"server"`
		Message string `json:"message"`
	}
	req := map[string]string{"address": accountAddress, "server": accountServer}
	if err := client.post(ctx, "/api/v1/accounts", req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Account registered: %s on %s\n", resp.Address, resp.Server)
	}
	return nil
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Address string `json:"address"`
		Message string `json:"message"`
	}
	if err := client.del(ctx, accountPath(accountAddress, ""), &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Account deregistered: %s\n", accountAddress)
	}
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Accounts []struct {
			Address   string `json:"address"`
			Server    string `json:"server"`
			Messages  int    `json:"messages"`
			HasScript bool   `json:"has_script"`
		} `json:"accounts"`
		Total int `json:"total"`
	}
	if err := client.get(ctx, "/api/v1/accounts", &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Total == 0 {
			fmt.Println("No accounts registered.")
			return nil
		}
		fmt.Printf("Accounts (%d):\n\n", resp.Total)
		for _, a := range resp.Accounts {
			scriptMarker := ""
			if a.HasScript {
				scriptMarker = " [sieve]"
			}
			fmt.Printf("  %s on %s, %d messages%s\n",
				a.Address, a.Server, a.Messages, scriptMarker)
		}
	}
	return nil
}
