package compact

import (
	"context"
	"fmt"

	"github.com/blockvault/blockvault/internal/storage"
)

// ReassignForDelete runs PrepareForDelete for victimVolumeID inside its
// own transaction: every block currently living there is handed off to
// a surviving duplicate before the volume is marked for physical
// deletion. otherVictims lists the other block volumes already queued
// for deletion in the same compaction pass, so a block is never
// "reassigned" onto a volume that is about to disappear too.
func ReassignForDelete(ctx context.Context, s storage.Storage, victimVolumeID int64, otherVictims []int64) error {
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.PrepareForDelete(ctx, victimVolumeID, otherVictims)
	})
	if err != nil {
		return fmt.Errorf("reassign for delete volume %d: %w", victimVolumeID, err)
	}
	return nil
}

// ReassignAllForDelete runs ReassignForDelete for every volume in
// victims, treating the rest of the set as otherVictims for each call.
func ReassignAllForDelete(ctx context.Context, s storage.Storage, victims []int64) error {
	for i, v := range victims {
		others := make([]int64, 0, len(victims)-1)
		others = append(others, victims[:i]...)
		others = append(others, victims[i+1:]...)
		if err := ReassignForDelete(ctx, s, v, others); err != nil {
			return err
		}
	}
	return nil
}
