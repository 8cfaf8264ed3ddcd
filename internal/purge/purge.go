// Package purge detects remote volumes that have vanished outside the
// ordinary compact/delete flow (manual deletion, remote corruption, a
// provider outage that dropped an object) and identifies the filesets
// that can no longer be restored in full as a result.
package purge

import (
	"context"
	"fmt"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
)

// Report is the outcome of a scan: which registered block volumes are
// no longer present on the remote, and which filesets that breaks.
type Report struct {
	MissingVolumes []*model.RemoteVolume
	Broken         []model.BrokenFileset
}

// Scan compares the index database's block volume rows against what
// the remote actually holds and resolves the fallout through
// ListBrokenFilesets. A volume already in a Deleting or Deleted state
// is expected to be gone and is not reported missing.
func Scan(ctx context.Context, s storage.Storage, backend remote.Backend) (*Report, error) {
	present, err := backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("purge scan: list remote: %w", err)
	}
	onRemote := make(map[string]bool, len(present))
	for _, f := range present {
		onRemote[f.Name] = true
	}

	registered, err := s.ListRemoteVolumes(ctx, model.VolumeTypeBlocks)
	if err != nil {
		return nil, fmt.Errorf("purge scan: list registered block volumes: %w", err)
	}

	var missing []*model.RemoteVolume
	var missingIDs []int64
	for _, v := range registered {
		if v.State == model.VolumeStateDeleting || v.State == model.VolumeStateDeleted {
			continue
		}
		if !onRemote[v.Name] {
			missing = append(missing, v)
			missingIDs = append(missingIDs, v.ID)
		}
	}

	broken, err := s.ListBrokenFilesets(ctx, missingIDs)
	if err != nil {
		return nil, fmt.Errorf("purge scan: list broken filesets: %w", err)
	}

	return &Report{MissingVolumes: missing, Broken: broken}, nil
}

// MarkMissing drives every volume in the report to the Deleting state,
// the same terminal state compact.Apply uses, so the regular
// grace-period sweep (storage.Storage.DeletableBlockVolumes) removes
// their rows once its cutoff passes rather than leaving them
// registered against data that no longer exists.
func MarkMissing(ctx context.Context, s storage.Storage, report *Report, reporter progress.Reporter) error {
	if reporter == nil {
		reporter = progress.NopReporter{}
	}
	for i, v := range report.MissingVolumes {
		if err := progress.Checkpoint(ctx); err != nil {
			return err
		}
		err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
			return tx.SetVolumeState(ctx, v.ID, model.VolumeStateDeleting)
		})
		if err != nil {
			return fmt.Errorf("purge: mark volume %d missing: %w", v.ID, err)
		}
		reporter.Report("purge: mark volumes missing", int64(i+1), int64(len(report.MissingVolumes)))
	}
	return nil
}
