package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the server's tool catalog",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tool the gateway can route",
	RunE:  runToolsList,
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	tools, err := client().listTools(cmd.Context())
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		fmt.Println("No tools registered.")
		return nil
	}

	fmt.Printf("%-30s %-15s %-15s %s\n", "ID", "SERVER", "CATALOG", "DESCRIPTION")
	for _, t := range tools {
		fmt.Printf("%-30s %-15s %-15s %s\n", t.ID, t.Server, t.Catalog, truncate(t.Description, 60))
	}
	return nil
}
