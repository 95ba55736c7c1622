package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rampart-ai/rampart/internal/policy"
)

var (
	policyOrg        string
	policyTool       string
	policyScope      string
	policyAction     string
	policyReason     string
	policyConditions []string
)

func init() {
	rootCmd.AddCommand(policiesCmd)
	policiesCmd.AddCommand(policiesListCmd, policiesCreateCmd, policiesDeleteCmd)

	policiesCmd.PersistentFlags().StringVar(&policyOrg, "org", "", "Organization id")
	policiesCmd.PersistentFlags().StringVar(&policyTool, "tool", "", "Tool id (server__name)")
	policiesCmd.PersistentFlags().StringVar(&policyScope, "scope", "invocation", "Policy scope (invocation|result)")

	policiesCreateCmd.Flags().StringVar(&policyAction, "action", "", "Action taken when the conditions match (required)")
	policiesCreateCmd.Flags().StringVar(&policyReason, "reason", "", "Reason shown on denials")
	policiesCreateCmd.Flags().StringArrayVar(&policyConditions, "condition", nil,
		`Condition as "<key> <operator> <value>", repeatable. No conditions makes the policy the tool's default.`)
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Manage invocation and result policies",
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the policies of one tool",
	RunE:  runPoliciesList,
}

var policiesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a policy",
	Long:  "Creates a policy for one tool. Conditions are ANDed; the oldest matching policy wins, and an empty condition list acts as the tool's default.",
	RunE:  runPoliciesCreate,
}

var policiesDeleteCmd = &cobra.Command{
	Use:   "delete <policy-id>",
	Short: "Delete a policy by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoliciesDelete,
}

func requireOrgAndTool() error {
	if policyOrg == "" || policyTool == "" {
		return fmt.Errorf("--org and --tool are required")
	}
	if policyScope != "invocation" && policyScope != "result" {
		return fmt.Errorf("--scope must be 'invocation' or 'result'")
	}
	return nil
}

func runPoliciesList(cmd *cobra.Command, _ []string) error {
	if err := requireOrgAndTool(); err != nil {
		return err
	}
	c := client()
	ctx := cmd.Context()

	type row struct {
		id, action, reason string
		conditions         []policy.Condition
	}
	var rows []row
	if policyScope == "invocation" {
		policies, err := c.ListInvocationPolicies(ctx, policyOrg, policyTool)
		if err != nil {
			return err
		}
		for _, p := range policies {
			rows = append(rows, row{p.ID, p.Action.String(), p.Reason, p.Conditions})
		}
	} else {
		policies, err := c.ListResultPolicies(ctx, policyOrg, policyTool)
		if err != nil {
			return err
		}
		for _, p := range policies {
			rows = append(rows, row{p.ID, p.Action.String(), p.Reason, p.Conditions})
		}
	}

	if len(rows) == 0 {
		fmt.Printf("No %s policies for %s.\n", policyScope, policyTool)
		return nil
	}

	fmt.Printf("%-38s %-24s %-40s %s\n", "ID", "ACTION", "CONDITIONS", "REASON")
	for _, r := range rows {
		fmt.Printf("%-38s %-24s %-40s %s\n", r.id, r.action, truncate(formatConditions(r.conditions), 40), r.reason)
	}
	return nil
}

func runPoliciesCreate(cmd *cobra.Command, _ []string) error {
	if err := requireOrgAndTool(); err != nil {
		return err
	}
	if policyAction == "" {
		return fmt.Errorf("--action is required")
	}

	conds, err := parseConditions(policyConditions)
	if err != nil {
		return err
	}

	c := client()
	ctx := cmd.Context()
	if policyScope == "invocation" {
		action, err := policy.ParseInvocationAction(policyAction)
		if err != nil {
			return err
		}
		created, err := c.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
			OrgID: policyOrg, ToolID: policyTool, Conditions: conds, Action: action, Reason: policyReason,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created invocation policy %s\n", created.ID)
		return nil
	}

	action, err := policy.ParseResultAction(policyAction)
	if err != nil {
		return err
	}
	created, err := c.CreateResultPolicy(ctx, policy.ResultPolicy{
		OrgID: policyOrg, ToolID: policyTool, Conditions: conds, Action: action, Reason: policyReason,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created result policy %s\n", created.ID)
	return nil
}

func runPoliciesDelete(cmd *cobra.Command, args []string) error {
	if policyScope != "invocation" && policyScope != "result" {
		return fmt.Errorf("--scope must be 'invocation' or 'result'")
	}
	c := client()
	ctx := cmd.Context()

	var deleted bool
	var err error
	if policyScope == "invocation" {
		deleted, err = c.DeleteInvocationPolicy(ctx, args[0])
	} else {
		deleted, err = c.DeleteResultPolicy(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no %s policy with id %s", policyScope, args[0])
	}
	fmt.Printf("Deleted %s policy %s\n", policyScope, args[0])
	return nil
}

// parseConditions turns "<key> <operator> <value>" strings into conditions.
// The value keeps embedded spaces.
func parseConditions(raw []string) ([]policy.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]policy.Condition, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("condition %q: want \"<key> <operator> <value>\"", s)
		}
		op, err := policy.ParseOperator(parts[1])
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", s, err)
		}
		value := ""
		if len(parts) == 3 {
			value = parts[2]
		}
		out = append(out, policy.Condition{Key: parts[0], Operator: op, Value: value})
	}
	return out, nil
}

func formatConditions(conds []policy.Condition) string {
	if len(conds) == 0 {
		return "(default)"
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Key, c.Operator, c.Value))
	}
	return strings.Join(parts, " AND ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
