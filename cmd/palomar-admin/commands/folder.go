package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palomarmail/palomar/folder"
)

var (
	folderAccount string
	folderParent  string
	folderName    string
)

// folderCmd is the parent command for folder management subcommands.
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage an account's folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a folder",
	RunE:  runFolderCreate,
}

var folderTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the folder tree",
	RunE:  runFolderTree,
}

func init() {
	folderCreateCmd.Flags().StringVar(&folderAccount, "account", "",
		"Account address (required)")
	folderCreateCmd.Flags().StringVar(&folderParent, "parent", "",
		"Parent folder path (empty for top level)")
	folderCreateCmd.Flags().StringVar(&folderName, "name", "",
		"New folder name (required)")
	folderCreateCmd.MarkFlagRequired("account")
	folderCreateCmd.MarkFlagRequired("name")

	folderTreeCmd.Flags().StringVar(&folderAccount, "account", "",
		"Account address (required)")
	folderTreeCmd.MarkFlagRequired("account")

	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderTreeCmd)
}

func runFolderCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Address string `json:"address"`
		Parent  string `json:"parent"`
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	req := map[string]string{"parent": folderParent, "name": folderName}
	if err := client.post(ctx, accountPath(folderAccount, "/folders"), req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Parent == "" {
			fmt.Printf("Folder created: %s\n", resp.Name)
		} else {
			fmt.Printf("Folder created: %s/%s\n", resp.Parent, resp.Name)
		}
	}
	return nil
}

func runFolderTree(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Address string       `json:"address"`
		Tree    *folder.Node `json:"tree"`
	}
	if err := client.get(ctx, accountPath(folderAccount, "/folders"), &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Folders of %s:\n\n", resp.Address)
		fmt.Print(formatTree(resp.Tree))
	}
	return nil
}
