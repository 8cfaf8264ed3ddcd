package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/compact"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
)

var (
	flagDryRun           bool
	flagWasteThreshold   float64
	flagSmallFileSize    int64
	flagMaxSmallFileSize int
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim wasted space by consolidating block volumes",
	Args:  cobra.NoArgs,
	RunE:  runCompact,
}

func init() {
	compactCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the compaction plan without applying it")
	compactCmd.Flags().Float64Var(&flagWasteThreshold, "waste-threshold", 0.2, "fraction of wasted space that triggers compaction")
	compactCmd.Flags().Int64Var(&flagSmallFileSize, "small-file-size", 10*1024*1024, "volumes under this size are eligible for small-file compaction")
	compactCmd.Flags().IntVar(&flagMaxSmallFileSize, "max-small-files", 20, "number of small volumes that triggers compaction")
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	backend, err := openBackend()
	if err != nil {
		return err
	}

	thresholds := compact.Thresholds{
		VolumeSize:        100 * 1024 * 1024,
		WasteThreshold:    flagWasteThreshold,
		SmallFileSize:     flagSmallFileSize,
		MaxSmallFileCount: flagMaxSmallFileSize,
	}

	plan, err := compact.BuildPlan(ctx, db, thresholds)
	if err != nil {
		return fmt.Errorf("build compaction plan: %w", err)
	}

	if !plan.Decision.ShouldReclaim && !plan.Decision.ShouldCompact {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to compact")
		return sweepDeletable(ctx, db, backend, cmd)
	}

	var report strings.Builder
	fmt.Fprintf(&report, "## Compaction plan\n\n- clean delete: %d volume(s)\n- waste: %d volume(s)\n- small: %d volume(s)\n- delete order: %d item(s)\n",
		len(plan.Decision.CleanDelete), len(plan.Decision.Waste), len(plan.Decision.Small), len(plan.Order))
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(report.String()))

	if flagDryRun {
		return nil
	}

	if err := compact.Apply(ctx, db, plan, consoleReporter{}); err != nil {
		return fmt.Errorf("apply compaction plan: %w", err)
	}

	return sweepDeletable(ctx, db, backend, cmd)
}

// sweepDeletable finds block volumes whose grace period has elapsed
// and are no longer referenced, and actually removes them from the
// remote -- compact.Apply only marks rows Deleting, it never touches
// the backend itself.
func sweepDeletable(ctx context.Context, db storage.Storage, backend remote.Backend, cmd *cobra.Command) error {
	ids, err := compact.SweepDeletable(ctx, db, time.Now())
	if err != nil {
		return fmt.Errorf("sweep deletable volumes: %w", err)
	}
	for _, id := range ids {
		vol, err := db.GetRemoteVolume(ctx, id)
		if err != nil {
			return fmt.Errorf("resolve swept volume %d: %w", id, err)
		}
		if err := backend.Delete(ctx, vol.Name, vol.Size, false); err != nil {
			return fmt.Errorf("delete swept volume %s: %w", vol.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", vol.Name)
	}
	return nil
}
