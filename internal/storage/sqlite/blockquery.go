package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

// blockQuerier answers liveness checks against a snapshot of the block
// table taken at construction time, so one compaction or recreate pass
// can ask "is this block still live" thousands of times without
// re-querying the database per block (spec's cached liveness design).
// It must be discarded once its owning pass finishes; it does not
// observe writes made after it was built.
type blockQuerier struct {
	live map[string]struct{}
}

func (q *blockQuerier) IsLive(hash string, size int64) (bool, error) {
	_, ok := q.live[key(hash, size)]
	return ok, nil
}

func (q *blockQuerier) Close() error {
	q.live = nil
	return nil
}

func key(hash string, size int64) string {
	return fmt.Sprintf("%s:%d", hash, size)
}

// BlockQuery snapshots the current set of live (hash, size) pairs.
func (d *DB) BlockQuery(ctx context.Context) (storage.BlockLivenessQuerier, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT hash, size FROM block`)
	if err != nil {
		return nil, fmt.Errorf("snapshot block liveness: %w", err)
	}
	defer rows.Close()

	live := make(map[string]struct{})
	for rows.Next() {
		var hash string
		var size int64
		if err := rows.Scan(&hash, &size); err != nil {
			return nil, fmt.Errorf("snapshot block liveness: %w", err)
		}
		live[key(hash, size)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot block liveness: %w", err)
	}
	return &blockQuerier{live: live}, nil
}

func (d *DB) FindBlock(ctx context.Context, hash string, size int64) (*model.Block, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, hash, size, volume_id FROM block WHERE hash = ? AND size = ?`, hash, size)
	var b model.Block
	if err := row.Scan(&b.ID, &b.Hash, &b.Size, &b.VolumeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find block: %w", err)
	}
	return &b, nil
}
