package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

func (d *DB) ListFilesets(ctx context.Context) ([]*model.Fileset, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, "timestamp", volume_id, is_full_backup FROM fileset ORDER BY "timestamp"`)
	if err != nil {
		return nil, fmt.Errorf("list filesets: %w", err)
	}
	defer rows.Close()

	var out []*model.Fileset
	for rows.Next() {
		var fs model.Fileset
		var ts int64
		if err := rows.Scan(&fs.ID, &ts, &fs.VolumeID, &fs.IsFullBackup); err != nil {
			return nil, fmt.Errorf("list filesets: %w", err)
		}
		fs.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, &fs)
	}
	return out, rows.Err()
}

func (d *DB) GetFileset(ctx context.Context, filesetID int64) (*model.Fileset, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, "timestamp", volume_id, is_full_backup FROM fileset WHERE id = ?`, filesetID)
	var fs model.Fileset
	var ts int64
	if err := row.Scan(&fs.ID, &ts, &fs.VolumeID, &fs.IsFullBackup); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fileset: %w", err)
	}
	fs.Timestamp = time.Unix(ts, 0).UTC()
	return &fs, nil
}

func (d *DB) ListFilesetEntries(ctx context.Context, filesetID int64) ([]*model.FilesetEntry, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT fileset_id, file_id, last_modified FROM fileset_entry WHERE fileset_id = ?`, filesetID)
	if err != nil {
		return nil, fmt.Errorf("list fileset entries: %w", err)
	}
	defer rows.Close()

	var out []*model.FilesetEntry
	for rows.Next() {
		var e model.FilesetEntry
		var lm int64
		if err := rows.Scan(&e.FilesetID, &e.FileID, &lm); err != nil {
			return nil, fmt.Errorf("list fileset entries: %w", err)
		}
		e.LastModified = time.Unix(lm, 0).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (d *DB) GetOptions(ctx context.Context, filesetID int64) (map[string]string, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT key, value FROM option WHERE fileset_id = ?`, filesetID)
	if err != nil {
		return nil, fmt.Errorf("get options: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("get options: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (d *DB) ListRemoteVolumes(ctx context.Context, types ...model.VolumeType) ([]*model.RemoteVolume, error) {
	query := `SELECT id, name, type, state, size, hash, delete_grace_period_seconds FROM remote_volume`
	args := make([]any, 0, len(types))
	if len(types) > 0 {
		query += ` WHERE type IN (`
		for i, t := range types {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, string(t))
		}
		query += `)`
	}
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list remote volumes: %w", err)
	}
	defer rows.Close()
	return scanRemoteVolumes(rows)
}

func (d *DB) GetRemoteVolume(ctx context.Context, volumeID int64) (*model.RemoteVolume, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, name, type, state, size, hash, delete_grace_period_seconds FROM remote_volume WHERE id = ?`, volumeID)
	return scanRemoteVolume(row)
}

func (d *DB) GetRemoteVolumeByName(ctx context.Context, name string) (*model.RemoteVolume, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, name, type, state, size, hash, delete_grace_period_seconds FROM remote_volume WHERE name = ?`, name)
	return scanRemoteVolume(row)
}

func (d *DB) IndexVolumesFor(ctx context.Context, blockVolumeID int64) ([]*model.RemoteVolume, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT rv.id, rv.name, rv.type, rv.state, rv.size, rv.hash, rv.delete_grace_period_seconds
		 FROM remote_volume rv
		 JOIN index_block_link l ON l.index_volume_id = rv.id
		 WHERE l.block_volume_id = ?`, blockVolumeID)
	if err != nil {
		return nil, fmt.Errorf("list index volumes for block volume: %w", err)
	}
	defer rows.Close()
	return scanRemoteVolumes(rows)
}

func scanRemoteVolume(row *sql.Row) (*model.RemoteVolume, error) {
	var v model.RemoteVolume
	var typ, state string
	var graceSeconds int64
	if err := row.Scan(&v.ID, &v.Name, &typ, &state, &v.Size, &v.Hash, &graceSeconds); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan remote volume: %w", err)
	}
	v.Type = model.VolumeType(typ)
	v.State = model.VolumeState(state)
	v.DeleteGracePeriod = time.Duration(graceSeconds) * time.Second
	return &v, nil
}

func scanRemoteVolumes(rows *sql.Rows) ([]*model.RemoteVolume, error) {
	var out []*model.RemoteVolume
	for rows.Next() {
		var v model.RemoteVolume
		var typ, state string
		var graceSeconds int64
		if err := rows.Scan(&v.ID, &v.Name, &typ, &state, &v.Size, &v.Hash, &graceSeconds); err != nil {
			return nil, fmt.Errorf("scan remote volumes: %w", err)
		}
		v.Type = model.VolumeType(typ)
		v.State = model.VolumeState(state)
		v.DeleteGracePeriod = time.Duration(graceSeconds) * time.Second
		out = append(out, &v)
	}
	return out, rows.Err()
}

// VolumeUsage reports, for a block volume, how many bytes of its
// blocks are still referenced by a live blockset (active) versus how
// many bytes belong to blocks that were later deleted or moved
// (inactive). The wasted-space analyzer turns this into a reclaim
// decision (spec §4.4-4.5).
func (d *DB) VolumeUsage(ctx context.Context, volumeID int64) (active, inactive int64, err error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM block WHERE volume_id = ?`, volumeID)
	if err := row.Scan(&active); err != nil {
		return 0, 0, fmt.Errorf("volume usage (active): %w", err)
	}

	row = d.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM deleted_block WHERE volume_id = ?`, volumeID)
	if err := row.Scan(&inactive); err != nil {
		return 0, 0, fmt.Errorf("volume usage (inactive): %w", err)
	}
	return active, inactive, nil
}

// DeletableBlockVolumes returns the IDs of block volumes whose state is
// Deleting and whose delete grace period has elapsed as of graceCutoff
// (a Unix timestamp), and which no longer have any live index volume
// link pointing at them -- i.e. safe to physically remove from the
// remote per the delete-reordering rule (spec §4.7).
func (d *DB) DeletableBlockVolumes(ctx context.Context, graceCutoff int64) ([]int64, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT rv.id FROM remote_volume rv
		 WHERE rv.type = 'Blocks' AND rv.state = 'Deleting'
		   AND rv.deleting_since IS NOT NULL
		   AND (rv.deleting_since + rv.delete_grace_period_seconds) <= ?
		   AND NOT EXISTS (
		     SELECT 1 FROM index_block_link l
		     JOIN remote_volume iv ON iv.id = l.index_volume_id
		     WHERE l.block_volume_id = rv.id AND iv.state != 'Deleted'
		   )`, graceCutoff)
	if err != nil {
		return nil, fmt.Errorf("list deletable block volumes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list deletable block volumes: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) AllIndexBlockLinks(ctx context.Context) ([]model.IndexBlockLink, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT index_volume_id, block_volume_id FROM index_block_link`)
	if err != nil {
		return nil, fmt.Errorf("list index block links: %w", err)
	}
	defer rows.Close()

	var out []model.IndexBlockLink
	for rows.Next() {
		var l model.IndexBlockLink
		if err := rows.Scan(&l.IndexVolumeID, &l.BlockVolumeID); err != nil {
			return nil, fmt.Errorf("list index block links: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// VerifyBlocksetConsistency implements the recreate engine's P5 check:
// a blockset's length must equal the sum of its blocks' sizes, and its
// block count must equal ceil(length / blockSize).
func (d *DB) VerifyBlocksetConsistency(ctx context.Context, blockSize int64) ([]int64, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT bs.id
		FROM blockset bs
		LEFT JOIN (
			SELECT be.blockset_id, COUNT(*) AS block_count, COALESCE(SUM(b.size), 0) AS total_size
			FROM blockset_entry be
			JOIN block b ON b.id = be.block_id
			GROUP BY be.blockset_id
		) agg ON agg.blockset_id = bs.id
		WHERE COALESCE(agg.total_size, 0) != bs.length
		   OR COALESCE(agg.block_count, 0) != CAST((bs.length + ? - 1) / ? AS INTEGER)`,
		blockSize, blockSize)
	if err != nil {
		return nil, fmt.Errorf("verify blockset consistency: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("verify blockset consistency: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) FilesetTimestamps(ctx context.Context) ([]int64, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT "timestamp" FROM fileset ORDER BY "timestamp"`)
	if err != nil {
		return nil, fmt.Errorf("list fileset timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("list fileset timestamps: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
