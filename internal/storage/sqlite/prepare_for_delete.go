package sqlite

import (
	"context"
	"fmt"

	"github.com/blockvault/blockvault/internal/apperr"
)

// PrepareForDelete implements spec §4.6: every block whose primary
// copy lives in victimVolumeID is reassigned to a surviving duplicate
// not itself slated for deletion (otherVictims), and that duplicate
// row is then consumed. A block left with no surviving copy is a fatal
// inconsistency, not a warn-and-skip condition -- it means the engine
// is about to delete the only copy of live data.
func (t *tx) PrepareForDelete(ctx context.Context, victimVolumeID int64, otherVictims []int64) error {
	victimBlockIDs, err := t.blocksInVolume(ctx, victimVolumeID)
	if err != nil {
		return err
	}
	if len(victimBlockIDs) == 0 {
		return nil
	}

	replacements, err := t.survivingReplacements(ctx, victimBlockIDs, victimVolumeID, otherVictims)
	if err != nil {
		return err
	}

	var updateCount, deleteCount int64
	for blockID, replacementVolumeID := range replacements {
		res, err := t.conn.ExecContext(ctx,
			`UPDATE block SET volume_id = ? WHERE id = ? AND volume_id = ?`,
			replacementVolumeID, blockID, victimVolumeID)
		if err != nil {
			return fmt.Errorf("prepare for delete: reassign block %d: %w", blockID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("prepare for delete: reassign block %d: %w", blockID, err)
		}
		updateCount += n

		res, err = t.conn.ExecContext(ctx,
			`DELETE FROM duplicate_block WHERE block_id = ? AND volume_id = ?`, blockID, replacementVolumeID)
		if err != nil {
			return fmt.Errorf("prepare for delete: consume duplicate for block %d: %w", blockID, err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("prepare for delete: consume duplicate for block %d: %w", blockID, err)
		}
		deleteCount += n
	}

	if int(updateCount) != len(victimBlockIDs) || int(updateCount) != len(replacements) || updateCount != deleteCount {
		return apperr.Inconsistent(nil,
			"prepare for delete volume %d: %d blocks, %d replacements found, %d updated, %d duplicates consumed -- some block has no surviving copy",
			victimVolumeID, len(victimBlockIDs), len(replacements), updateCount, deleteCount)
	}

	if _, err := t.conn.ExecContext(ctx,
		`DELETE FROM duplicate_block WHERE volume_id = ?`, victimVolumeID); err != nil {
		return fmt.Errorf("prepare for delete: clear remaining duplicates on volume %d: %w", victimVolumeID, err)
	}

	return nil
}

func (t *tx) blocksInVolume(ctx context.Context, volumeID int64) ([]int64, error) {
	rows, err := t.conn.QueryContext(ctx, `SELECT id FROM block WHERE volume_id = ?`, volumeID)
	if err != nil {
		return nil, fmt.Errorf("list blocks in volume %d: %w", volumeID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list blocks in volume %d: %w", volumeID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// survivingReplacements picks, for each block in blockIDs, the
// highest-numbered duplicate volume not itself among otherVictims.
func (t *tx) survivingReplacements(ctx context.Context, blockIDs []int64, victimVolumeID int64, otherVictims []int64) (map[int64]int64, error) {
	excluded := make(map[int64]bool, len(otherVictims)+1)
	excluded[victimVolumeID] = true
	for _, v := range otherVictims {
		excluded[v] = true
	}

	rows, err := t.conn.QueryContext(ctx,
		`SELECT block_id, volume_id FROM duplicate_block WHERE block_id IN (`+placeholders(len(blockIDs))+`)`,
		int64Args(blockIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list duplicate blocks: %w", err)
	}
	defer rows.Close()

	best := make(map[int64]int64)
	for rows.Next() {
		var blockID, volumeID int64
		if err := rows.Scan(&blockID, &volumeID); err != nil {
			return nil, fmt.Errorf("list duplicate blocks: %w", err)
		}
		if excluded[volumeID] {
			continue
		}
		if cur, ok := best[blockID]; !ok || volumeID > cur {
			best[blockID] = volumeID
		}
	}
	return best, rows.Err()
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	s := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			s = append(s, ',')
		}
		s = append(s, '?')
	}
	return string(s)
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
