package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	filterName     string
	filterField    string
	filterContains string
	filterAction   string
	filterTier     string
	filterFolder   string
)

// filterCmd is the parent command for platform filter rule subcommands.
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Manage platform filter rules",
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filter rules in evaluation order",
	RunE:  runFilterList,
}

var filterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a filter rule",
	Long: `Register a platform filter rule. Rules run in registration order
against every delivery; the action is either set_tier (with --tier) or
redirect (with --folder).`,
	RunE: runFilterAdd,
}

func init() {
	filterAddCmd.Flags().StringVar(&filterName, "name", "",
		"Rule name, unique (required)")
	filterAddCmd.Flags().StringVar(&filterField, "field", "",
		"Matched field: subject, body, from, to (required)")
	filterAddCmd.Flags().StringVar(&filterContains, "contains", "",
		"Case-insensitive substring to match (required)")
	filterAddCmd.Flags().StringVar(&filterAction, "action", "",
		"Action: set_tier, redirect (required)")
	filterAddCmd.Flags().StringVar(&filterTier, "tier", "",
		"Tier for set_tier: high, medium, low")
	filterAddCmd.Flags().StringVar(&filterFolder, "folder", "",
		"Folder path for redirect")
	filterAddCmd.MarkFlagRequired("name")
	filterAddCmd.MarkFlagRequired("field")
	filterAddCmd.MarkFlagRequired("contains")
	filterAddCmd.MarkFlagRequired("action")

	filterCmd.AddCommand(filterListCmd)
	filterCmd.AddCommand(filterAddCmd)
}

func runFilterList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Filters []struct {
			Name    string `json:"name"`
			Summary string `json:"summary"`
		} `json:"filters"`
		Count int `json:"count"`
	}
	if err := client.get(ctx, "/api/v1/filters", &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Count == 0 {
			fmt.Println("No filter rules registered.")
			return nil
		}
		fmt.Printf("Filter rules (%d, in evaluation order):\n\n", resp.Count)
		for i, f := range resp.Filters {
			fmt.Printf("  %d. %s: %s\n", i+1, f.Name, f.Summary)
		}
	}
	return nil
}

func runFilterAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Name    string `json:"name"`
		Summary string `json:"summary"`
		Message string `json:"message"`
	}
	req := map[string]string{
		"name":     filterName,
		"field":    filterField,
		"contains": filterContains,
		"action":   filterAction,
		"tier":     filterTier,
		"folder":   filterFolder,
	}
	if err := client.post(ctx, "/api/v1/filters", req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Filter registered: %s (%s)\n", resp.Name, resp.Summary)
	}
	return nil
}
