package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

// ListBrokenFilesets finds every fileset that can no longer be
// restored in full because at least one block it depends on has its
// primary copy in one of missingVolumeIDs and no surviving
// DuplicateBlock row points anywhere else -- the same "no copy outside
// this volume set" condition survivingReplacements answers for
// PrepareForDelete, asked here against volumes that vanished from the
// remote rather than ones a compaction pass chose to retire.
func (d *DB) ListBrokenFilesets(ctx context.Context, missingVolumeIDs []int64) ([]model.BrokenFileset, error) {
	if len(missingVolumeIDs) == 0 {
		return nil, nil
	}

	ph := placeholders(len(missingVolumeIDs))
	args := append(int64Args(missingVolumeIDs), int64Args(missingVolumeIDs)...)

	rows, err := d.conn.QueryContext(ctx, `
		SELECT f.id, f."timestamp", COUNT(DISTINCT b.id) AS missing_blocks
		FROM fileset f
		JOIN fileset_entry fe ON fe.fileset_id = f.id
		JOIN file_lookup fl ON fl.id = fe.file_id
		JOIN blockset_entry be ON be.blockset_id = fl.blockset_id
		JOIN block b ON b.id = be.block_id
		WHERE b.volume_id IN (`+ph+`)
		  AND NOT EXISTS (
		    SELECT 1 FROM duplicate_block db
		    WHERE db.block_id = b.id AND db.volume_id NOT IN (`+ph+`)
		  )
		GROUP BY f.id, f."timestamp"
		ORDER BY f."timestamp"`, args...)
	if err != nil {
		return nil, fmt.Errorf("list broken filesets: %w", err)
	}
	defer rows.Close()

	var out []model.BrokenFileset
	for rows.Next() {
		var bf model.BrokenFileset
		var ts int64
		if err := rows.Scan(&bf.FilesetID, &ts, &bf.MissingBlocks); err != nil {
			return nil, fmt.Errorf("list broken filesets: %w", err)
		}
		bf.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, bf)
	}
	return out, rows.Err()
}
