package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	sieveAccount string
	sieveFile    string
)

// sieveCmd is the parent command for per-account sieve script management.
var sieveCmd = &cobra.Command{
	Use:   "sieve",
	Short: "Manage an account's sieve script",
}

var sieveSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Install a sieve script from a file",
	RunE:  runSieveSet,
}

var sieveRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the installed sieve script",
	RunE:  runSieveRemove,
}

func init() {
	sieveSetCmd.Flags().StringVar(&sieveAccount, "account", "",
		"Account address (required)")
	sieveSetCmd.Flags().StringVar(&sieveFile, "file", "",
		"Path to the sieve script (required)")
	sieveSetCmd.MarkFlagRequired("account")
	sieveSetCmd.MarkFlagRequired("file")

	sieveRemoveCmd.Flags().StringVar(&sieveAccount, "account", "",
		"Account address (required)")
	sieveRemoveCmd.MarkFlagRequired("account")

	sieveCmd.AddCommand(sieveSetCmd)
	sieveCmd.AddCommand(sieveRemoveCmd)
}

func runSieveSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	script, err := os.ReadFile(sieveFile)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	var resp struct {
		Address   string `json:"address"`
		Installed bool   `json:"installed"`
		Message   string `json:"message"`
	}
	if err := client.putText(ctx, accountPath(sieveAccount, "/sieve"), script, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("%s for %s\n", resp.Message, resp.Address)
	}
	return nil
}

func runSieveRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Address   string `json:"address"`
		Installed bool   `json:"installed"`
		Message   string `json:"message"`
	}
	if err := client.putText(ctx, accountPath(sieveAccount, "/sieve"), nil, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Script removed for %s\n", resp.Address)
	}
	return nil
}
