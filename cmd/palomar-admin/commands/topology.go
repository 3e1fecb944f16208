package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var (
	topologyServerID string
	topologyLinkA    string
	topologyLinkB    string
	topologyFrom     string
	topologyTo       string
)

// topologyCmd is the parent command for server network subcommands.
var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Manage the server network",
}

var topologyAddServerCmd = &cobra.Command{
	Use:   "add-server",
	Short: "Register a server",
	RunE:  runTopologyAddServer,
}

var topologyServersCmd = &cobra.Command{
	Use:   "servers",
	Short: "List registered servers",
	RunE:  runTopologyServers,
}

var topologyAddLinkCmd = &cobra.Command{
	Use:   "add-link",
	Short: "Link two servers",
	RunE:  runTopologyAddLink,
}

var topologyPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Find the shortest route between two servers",
	RunE:  runTopologyPath,
}

var topologyExploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "List all servers reachable from one server",
	RunE:  runTopologyExplore,
}

func init() {
	topologyAddServerCmd.Flags().StringVar(&topologyServerID, "id", "",
		"Server ID (required)")
	topologyAddServerCmd.MarkFlagRequired("id")

	topologyAddLinkCmd.Flags().StringVar(&topologyLinkA, "a", "",
		"First server ID (required)")
	topologyAddLinkCmd.Flags().StringVar(&topologyLinkB, "b", "",
		"Second server ID (required)")
	topologyAddLinkCmd.MarkFlagRequired("a")
	topologyAddLinkCmd.MarkFlagRequired("b")

	topologyPathCmd.Flags().StringVar(&topologyFrom, "from", "",
		"Source server ID (required)")
	topologyPathCmd.Flags().StringVar(&topologyTo, "to", "",
		"Target server ID (required)")
	topologyPathCmd.MarkFlagRequired("from")
	topologyPathCmd.MarkFlagRequired("to")

	topologyExploreCmd.Flags().StringVar(&topologyFrom, "from", "",
		"Source server ID (required)")
	topologyExploreCmd.MarkFlagRequired("from")

	topologyCmd.AddCommand(topologyAddServerCmd)
	topologyCmd.AddCommand(topologyServersCmd)
	topologyCmd.AddCommand(topologyAddLinkCmd)
	topologyCmd.AddCommand(topologyPathCmd)
	topologyCmd.AddCommand(topologyExploreCmd)
}

func runTopologyAddServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	req := map[string]string{"id": topologyServerID}
	if err := client.post(ctx, "/api/v1/topology/servers", req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Server registered: %s\n", resp.ID)
	}
	return nil
}

func runTopologyServers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		Servers []struct {
			ID        string   `json:"id"`
			Neighbors []string `json:"neighbors"`
			Accounts  int      `json:"accounts"`
		} `json:"servers"`
		Count int `json:"count"`
	}
	if err := client.get(ctx, "/api/v1/topology/servers", &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		if resp.Count == 0 {
			fmt.Println("No servers registered.")
			return nil
		}
		fmt.Printf("Servers (%d):\n\n", resp.Count)
		for _, s := range resp.Servers {
			neighbors := "none"
			if len(s.Neighbors) > 0 {
				neighbors = strings.Join(s.Neighbors, ", ")
			}
			fmt.Printf("  %s: %d accounts, links: %s\n",
				s.ID, s.Accounts, neighbors)
		}
	}
	return nil
}

func runTopologyAddLink(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		A       string `json:"a"`
		B       string `json:"b"`
		Message string `json:"message"`
	}
	req := map[string]string{"a": topologyLinkA, "b": topologyLinkB}
	if err := client.post(ctx, "/api/v1/topology/links", req, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Link added: %s <-> %s\n", resp.A, resp.B)
	}
	return nil
}

func runTopologyPath(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		From string   `json:"from"`
		To   string   `json:"to"`
		Path []string `json:"path"`
		Hops int      `json:"hops"`
	}
	path := "/api/v1/topology/path?from=" + url.QueryEscape(topologyFrom) +
		"&to=" + url.QueryEscape(topologyTo)
	if err := client.get(ctx, path, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Route (%d hops): %s\n",
			resp.Hops, strings.Join(resp.Path, " -> "))
	}
	return nil
}

func runTopologyExplore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := newClient()

	var resp struct {
		From    string   `json:"from"`
		Servers []string `json:"servers"`
		Count   int      `json:"count"`
	}
	path := "/api/v1/topology/explore?from=" + url.QueryEscape(topologyFrom)
	if err := client.get(ctx, path, &resp); err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(resp)
	default:
		fmt.Printf("Reachable from %s (%d servers):\n", resp.From, resp.Count)
		for _, id := range resp.Servers {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}
