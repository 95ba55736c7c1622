package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rampart-ai/rampart/internal/policypack"
)

var packWatch bool

func init() {
	rootCmd.AddCommand(packCmd)
	packCmd.AddCommand(packApplyCmd)

	packApplyCmd.Flags().BoolVar(&packWatch, "watch", false, "Keep running and re-apply whenever the file changes")
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Apply declarative policy packs",
}

var packApplyCmd = &cobra.Command{
	Use:   "apply <pack.yaml>",
	Short: "Apply a policy pack file to the server",
	Long:  "Replaces the policies of every tool the pack names with the pack's entries. Tools the pack does not mention keep their policies.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPackApply,
}

func runPackApply(cmd *cobra.Command, args []string) error {
	c := client()
	logger := zap.NewNop()
	if packWatch {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
	}

	applier := policypack.NewApplier(policypack.ApplierConfig{Store: c, Configs: c}, logger)

	stats, err := applier.ApplyFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Applied %s: %d tool(s) touched, %d policies created, %d removed\n",
		args[0], stats.ToolsTouched, stats.Created, stats.Removed)
	if stats.QuarantineUpdated {
		fmt.Println("Quarantine config updated")
	}

	if !packWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	fmt.Printf("Watching %s for changes, Ctrl-C to stop\n", args[0])
	return policypack.NewWatcher(args[0], applier, logger).Run(ctx)
}
