package commands

import (
	"github.com/spf13/cobra"
)

var (
	// apiURL is the base URL of the palomar admin API.
	apiURL string

	// apiKeyFlag is the bearer token for the admin API.
	apiKeyFlag string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "palomar-admin",
	Short: "Palomar platform admin CLI",
	Long: `palomar-admin manages a running palomar platform over its admin API.

Use this CLI to register servers and accounts, send and inspect messages,
manage folders and filter rules, and drive the dispatch queue.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(
		&apiURL, "api", "",
		"Admin API base URL (default: $PALOMAR_API_URL or http://localhost:8980)",
	)
	rootCmd.PersistentFlags().StringVar(
		&apiKeyFlag, "api-key", "",
		"Admin API bearer token (default: $PALOMAR_API_KEY)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	// Add subcommands.
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(sieveCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}
