package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	quarantineOrg             string
	quarantineMaxRounds       int
	quarantineMainFile        string
	quarantineQuarantinedFile string
	quarantineSummaryFile     string
)

func init() {
	rootCmd.AddCommand(quarantineCmd)
	quarantineCmd.AddCommand(quarantineShowCmd, quarantineSetCmd)

	quarantineCmd.PersistentFlags().StringVar(&quarantineOrg, "org", "", "Organization id (required)")

	quarantineSetCmd.Flags().IntVar(&quarantineMaxRounds, "max-rounds", 0, "Question rounds before the sanitizer gives up")
	quarantineSetCmd.Flags().StringVar(&quarantineMainFile, "main-prompt-file", "", "File with the privileged model's system prompt")
	quarantineSetCmd.Flags().StringVar(&quarantineQuarantinedFile, "quarantined-prompt-file", "", "File with the quarantined model's system prompt")
	quarantineSetCmd.Flags().StringVar(&quarantineSummaryFile, "summary-prompt-file", "", "File with the fallback summary prompt")
}

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and tune an org's quarantine sanitizer",
}

var quarantineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the org's quarantine configuration",
	RunE:  runQuarantineShow,
}

var quarantineSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update parts of the org's quarantine configuration",
	Long:  "Fetches the current configuration, overlays the given flags and writes it back. Flags left unset keep their stored values.",
	RunE:  runQuarantineSet,
}

func runQuarantineShow(cmd *cobra.Command, _ []string) error {
	if quarantineOrg == "" {
		return fmt.Errorf("--org is required")
	}
	cfg, err := client().GetConfig(cmd.Context(), quarantineOrg)
	if err != nil {
		return err
	}

	fmt.Printf("Org:        %s\n", cfg.OrgID)
	fmt.Printf("Max rounds: %d\n", cfg.MaxRounds)
	fmt.Printf("\nMain prompt:\n%s\n", cfg.MainPrompt)
	fmt.Printf("\nQuarantined prompt:\n%s\n", cfg.QuarantinedPrompt)
	fmt.Printf("\nSummary prompt:\n%s\n", cfg.SummaryPrompt)
	return nil
}

func runQuarantineSet(cmd *cobra.Command, _ []string) error {
	if quarantineOrg == "" {
		return fmt.Errorf("--org is required")
	}
	c := client()
	ctx := cmd.Context()

	cfg, err := c.GetConfig(ctx, quarantineOrg)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("max-rounds") {
		cfg.MaxRounds = quarantineMaxRounds
	}
	if quarantineMainFile != "" {
		if cfg.MainPrompt, err = readPromptFile(quarantineMainFile); err != nil {
			return err
		}
	}
	if quarantineQuarantinedFile != "" {
		if cfg.QuarantinedPrompt, err = readPromptFile(quarantineQuarantinedFile); err != nil {
			return err
		}
	}
	if quarantineSummaryFile != "" {
		if cfg.SummaryPrompt, err = readPromptFile(quarantineSummaryFile); err != nil {
			return err
		}
	}

	stored, err := c.UpsertConfig(ctx, *cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Updated quarantine config for %s (max rounds %d)\n", stored.OrgID, stored.MaxRounds)
	return nil
}

func readPromptFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}
