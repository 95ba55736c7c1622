package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rampart-ai/rampart/internal/gateway"
	"github.com/rampart-ai/rampart/internal/policy"
)

var (
	checkOrg       string
	checkTool      string
	checkArgsJSON  string
	checkUntrusted bool
	checkAttrs     []string
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkOrg, "org", "", "Organization id (required)")
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "Tool id (required)")
	checkCmd.Flags().StringVar(&checkArgsJSON, "args-json", "{}", "Tool arguments as a JSON object")
	checkCmd.Flags().BoolVar(&checkUntrusted, "untrusted", false, "Evaluate with an untrusted caller context")
	checkCmd.Flags().StringArrayVar(&checkAttrs, "attr", nil, `Context attribute as "key=value", repeatable`)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run a call against invocation policies",
	Long:  "Evaluates invocation policies for a hypothetical call without invoking the tool. Nothing is recorded.",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	if checkOrg == "" || checkTool == "" {
		return fmt.Errorf("--org and --tool are required")
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(checkArgsJSON), &args); err != nil {
		return fmt.Errorf("--args-json: %w", err)
	}

	trust := policy.TrustTrusted
	if checkUntrusted {
		trust = policy.TrustUntrusted
	}
	attrs, err := parseAttrs(checkAttrs)
	if err != nil {
		return err
	}

	resp, err := client().check(cmd.Context(), gateway.Request{
		OrgID:   checkOrg,
		ToolID:  checkTool,
		Args:    args,
		Context: policy.TrustContext{Trust: trust, Attrs: attrs},
	})
	if err != nil {
		return err
	}

	if resp.Allowed {
		fmt.Println("ALLOWED")
	} else {
		fmt.Println("BLOCKED")
	}
	if resp.PolicyID != "" {
		fmt.Printf("Policy: %s\n", resp.PolicyID)
	}
	if resp.Reason != "" {
		fmt.Printf("Reason: %s\n", resp.Reason)
	}
	return nil
}

func parseAttrs(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, s := range raw {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("attr %q: want \"key=value\"", s)
		}
		out[k] = v
	}
	return out, nil
}
