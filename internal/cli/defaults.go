package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rampart-ai/rampart/internal/api"
)

var (
	defaultsOrg    string
	defaultsScope  string
	defaultsAction string
	defaultsReason string
	defaultsTools  string
)

func init() {
	rootCmd.AddCommand(defaultsCmd)
	defaultsCmd.AddCommand(defaultsSetCmd)

	defaultsSetCmd.Flags().StringVar(&defaultsOrg, "org", "", "Organization id (required)")
	defaultsSetCmd.Flags().StringVar(&defaultsScope, "scope", "invocation", "Policy scope (invocation|result)")
	defaultsSetCmd.Flags().StringVar(&defaultsAction, "action", "", "Default action for the listed tools (required)")
	defaultsSetCmd.Flags().StringVar(&defaultsReason, "reason", "", "Reason shown on denials")
	defaultsSetCmd.Flags().StringVar(&defaultsTools, "tools", "", "Comma-separated tool ids (required)")
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Manage per-tool default policies",
}

var defaultsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the default action for a batch of tools",
	Long:  "Replaces the unconditional policy of each listed tool so unmatched calls fall through to the given action.",
	RunE:  runDefaultsSet,
}

func runDefaultsSet(cmd *cobra.Command, _ []string) error {
	if defaultsOrg == "" || defaultsAction == "" || defaultsTools == "" {
		return fmt.Errorf("--org, --action and --tools are required")
	}

	var tools []string
	for _, t := range strings.Split(defaultsTools, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tools = append(tools, t)
		}
	}
	if len(tools) == 0 {
		return fmt.Errorf("--tools names no tools")
	}

	updated, err := client().setDefaults(cmd.Context(), api.DefaultPoliciesReq{
		OrgID:   defaultsOrg,
		Scope:   defaultsScope,
		ToolIDs: tools,
		Action:  defaultsAction,
		Reason:  defaultsReason,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Updated default %s policy for %d tool(s)\n", defaultsScope, updated)
	return nil
}
