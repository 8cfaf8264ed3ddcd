package recreate

import (
	"context"
	"fmt"

	"github.com/blockvault/blockvault/internal/progress"
)

// phase5Cleanup implements spec §4.9 P5: verify every blockset's
// recorded length and block count against its actual constituent
// blocks, surfacing any mismatch rather than silently trusting the
// reconstructed database.
func (e *Engine) phase5Cleanup(ctx context.Context, res *Result) error {
	if err := progress.Checkpoint(ctx); err != nil {
		return err
	}
	e.Reporter.Report("recreate: verify", 0, 1)

	bad, err := e.Storage.VerifyBlocksetConsistency(ctx, e.Options.BlockSizeBytes)
	if err != nil {
		return fmt.Errorf("recreate: verify blockset consistency: %w", err)
	}
	res.InconsistentBlocksets = bad

	e.Reporter.Report("recreate: verify", 1, 1)
	return nil
}
