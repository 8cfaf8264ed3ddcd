package compact

import (
	"context"
	"fmt"
	"time"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/storage"
)

// Plan is the outcome of a compaction pass before any remote or
// database mutation happens: the set of volumes to reassign/delete and
// the order to delete them in.
type Plan struct {
	Decision Decision
	Order    []DeleteItem
}

// BuildPlan computes what a compaction run would do without touching the
// database or the remote. Callers drive Apply separately so a dry run
// (cmd/blockvault compact --dry-run) can print Plan and stop.
func BuildPlan(ctx context.Context, s storage.Storage, t Thresholds) (Plan, error) {
	report, err := WastedSpaceReport(ctx, s)
	if err != nil {
		return Plan{}, err
	}
	decision := Evaluate(report, t)
	if !decision.ShouldReclaim && !decision.ShouldCompact {
		return Plan{Decision: decision}, nil
	}

	victims := make([]int64, 0, len(decision.CleanDelete)+len(decision.CompactableVolumes))
	for _, v := range decision.CleanDelete {
		victims = append(victims, v.VolumeID)
	}
	if decision.ShouldCompact {
		for _, v := range decision.CompactableVolumes {
			victims = append(victims, v.VolumeID)
		}
	}

	order, err := ReorderDeletable(ctx, s, victims)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Decision: decision, Order: order}, nil
}

// Apply executes a previously computed Plan: for each block volume it
// reassigns surviving blocks away from the volume's other victims, then
// marks every volume in delete order as Deleting so the grace-period
// sweep (see DeletableBlockVolumes) can physically remove it later.
// Index volumes are marked Deleting outright since nothing references
// them once their last linked block volume has been ordered.
func Apply(ctx context.Context, s storage.Storage, p Plan, reporter progress.Reporter) error {
	if reporter == nil {
		reporter = progress.NopReporter{}
	}

	blockVictims := make([]int64, 0, len(p.Order))
	for _, item := range p.Order {
		if item.Kind == DeleteKindBlock {
			blockVictims = append(blockVictims, item.VolumeID)
		}
	}

	if err := ReassignAllForDelete(ctx, s, blockVictims); err != nil {
		return fmt.Errorf("apply compact plan: %w", err)
	}

	for i, item := range p.Order {
		if err := progress.Checkpoint(ctx); err != nil {
			return err
		}
		err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
			return tx.SetVolumeState(ctx, item.VolumeID, model.VolumeStateDeleting)
		})
		if err != nil {
			return fmt.Errorf("apply compact plan: mark volume %d deleting: %w", item.VolumeID, err)
		}
		reporter.Report("compact: mark deleting", int64(i+1), int64(len(p.Order)))
	}
	return nil
}

// SweepDeletable returns the block volumes whose grace period has
// elapsed as of now and which no longer have any live index volume
// pointing at them -- the set cmd/blockvault compact hands to the
// remote backend for physical Delete calls.
func SweepDeletable(ctx context.Context, s storage.Storage, now time.Time) ([]int64, error) {
	ids, err := s.DeletableBlockVolumes(ctx, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("sweep deletable: %w", err)
	}
	return ids, nil
}
