package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

// tx implements storage.Transaction over a single *sql.Tx.
type tx struct {
	conn *sql.Tx
}

func (t *tx) InsertBlock(ctx context.Context, b *model.Block) (int64, error) {
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO block (hash, size, volume_id) VALUES (?, ?, ?)`,
		b.Hash, b.Size, b.VolumeID)
	if err != nil {
		return 0, fmt.Errorf("insert block: %w", err)
	}
	return res.LastInsertId()
}

func (t *tx) FindBlock(ctx context.Context, hash string, size int64) (*model.Block, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT id, hash, size, volume_id FROM block WHERE hash = ? AND size = ?`, hash, size)
	var b model.Block
	if err := row.Scan(&b.ID, &b.Hash, &b.Size, &b.VolumeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find block: %w", err)
	}
	return &b, nil
}

func (t *tx) MarkBlockDeleted(ctx context.Context, hash string, size, volumeID int64) error {
	if _, err := t.conn.ExecContext(ctx,
		`INSERT INTO deleted_block (hash, size, volume_id) VALUES (?, ?, ?)`,
		hash, size, volumeID); err != nil {
		return fmt.Errorf("mark block deleted: %w", err)
	}
	if _, err := t.conn.ExecContext(ctx,
		`DELETE FROM block WHERE hash = ? AND size = ?`, hash, size); err != nil {
		return fmt.Errorf("delete block row: %w", err)
	}
	return nil
}

func (t *tx) AddDuplicateBlock(ctx context.Context, blockID, volumeID int64) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO duplicate_block (block_id, volume_id) VALUES (?, ?)`,
		blockID, volumeID)
	if err != nil {
		return fmt.Errorf("add duplicate block: %w", err)
	}
	return nil
}

// ReassignBlockVolume is used by the compaction engine's "prepare for
// delete" step: when the primary copy's volume is about to be
// reclaimed, point block.volume_id at one of its remaining duplicates.
func (t *tx) ReassignBlockVolume(ctx context.Context, blockID, newVolumeID int64) error {
	res, err := t.conn.ExecContext(ctx,
		`UPDATE block SET volume_id = ? WHERE id = ?`, newVolumeID, blockID)
	if err != nil {
		return fmt.Errorf("reassign block volume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reassign block volume: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("reassign block volume: block %d not found", blockID)
	}
	if _, err := t.conn.ExecContext(ctx,
		`DELETE FROM duplicate_block WHERE block_id = ? AND volume_id = ?`, blockID, newVolumeID); err != nil {
		return fmt.Errorf("reassign block volume: drop promoted duplicate: %w", err)
	}
	return nil
}

func (t *tx) InsertBlockset(ctx context.Context, bs *model.Blockset) (int64, error) {
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO blockset (full_hash, length) VALUES (?, ?)`, bs.FullHash, bs.Length)
	if err != nil {
		return 0, fmt.Errorf("insert blockset: %w", err)
	}
	return res.LastInsertId()
}

func (t *tx) FindBlocksetByHash(ctx context.Context, fullHash string, length int64) (*model.Blockset, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT id, full_hash, length FROM blockset WHERE full_hash = ? AND length = ?`, fullHash, length)
	var bs model.Blockset
	if err := row.Scan(&bs.ID, &bs.FullHash, &bs.Length); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find blockset: %w", err)
	}
	return &bs, nil
}

func (t *tx) AddBlocksetEntry(ctx context.Context, e *model.BlocksetEntry) error {
	// OR IGNORE: recreate's phase 4 retries unresolved blocklists across
	// passes and may re-derive an (blockset_id, idx) pair a prior pass
	// already settled.
	_, err := t.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO blockset_entry (blockset_id, idx, block_id) VALUES (?, ?, ?)`,
		e.BlocksetID, e.Index, e.BlockID)
	if err != nil {
		return fmt.Errorf("add blockset entry: %w", err)
	}
	return nil
}

func (t *tx) AddBlocklistHash(ctx context.Context, h *model.BlocklistHash) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO blocklist_hash (blockset_id, idx, hash) VALUES (?, ?, ?)`,
		h.BlocksetID, h.Index, h.Hash)
	if err != nil {
		return fmt.Errorf("add blocklist hash: %w", err)
	}
	return nil
}

func (t *tx) InsertMetadataset(ctx context.Context, m *model.Metadataset) (int64, error) {
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO metadataset (blockset_id) VALUES (?)`, m.BlocksetID)
	if err != nil {
		return 0, fmt.Errorf("insert metadataset: %w", err)
	}
	return res.LastInsertId()
}

func (t *tx) FindBlocklistHashOccurrences(ctx context.Context, hash string) ([]model.BlocklistHash, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT blockset_id, idx, hash FROM blocklist_hash WHERE hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("find blocklist hash occurrences: %w", err)
	}
	defer rows.Close()

	var out []model.BlocklistHash
	for rows.Next() {
		var h model.BlocklistHash
		if err := rows.Scan(&h.BlocksetID, &h.Index, &h.Hash); err != nil {
			return nil, fmt.Errorf("find blocklist hash occurrences: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *tx) InternPathPrefix(ctx context.Context, prefix string) (int64, error) {
	if _, err := t.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO path_prefix (prefix) VALUES (?)`, prefix); err != nil {
		return 0, fmt.Errorf("intern path prefix: %w", err)
	}
	row := t.conn.QueryRowContext(ctx, `SELECT id FROM path_prefix WHERE prefix = ?`, prefix)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("intern path prefix: %w", err)
	}
	return id, nil
}

func (t *tx) UpsertFileLookup(ctx context.Context, f *model.FileLookup) (int64, error) {
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO file_lookup (path_prefix_id, name, blockset_id, metadata_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(path_prefix_id, name) DO UPDATE SET
		   blockset_id = excluded.blockset_id,
		   metadata_id = excluded.metadata_id`,
		f.PathPrefixID, f.Name, f.BlocksetID, f.MetadataID)
	if err != nil {
		return 0, fmt.Errorf("upsert file lookup: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	row := t.conn.QueryRowContext(ctx,
		`SELECT id FROM file_lookup WHERE path_prefix_id = ? AND name = ?`, f.PathPrefixID, f.Name)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert file lookup: %w", err)
	}
	return id, nil
}

func (t *tx) LookupFileHistory(ctx context.Context, pathPrefixID int64, name string) (*model.FileHistory, error) {
	row := t.conn.QueryRowContext(ctx, `
		SELECT fl.id, bs.id, bs.full_hash, bs.length, md_bs.full_hash, md_bs.length,
		       (SELECT MAX(fe.last_modified) FROM fileset_entry fe WHERE fe.file_id = fl.id)
		  FROM file_lookup fl
		  JOIN blockset bs ON bs.id = fl.blockset_id
		  JOIN metadataset md ON md.id = fl.metadata_id
		  JOIN blockset md_bs ON md_bs.id = md.blockset_id
		 WHERE fl.path_prefix_id = ? AND fl.name = ?`,
		pathPrefixID, name)

	var h model.FileHistory
	var lastModified sql.NullInt64
	if err := row.Scan(&h.FileID, &h.ContentBlocksetID, &h.OldHash, &h.LastFileSize,
		&h.OldMetaHash, &h.OldMetaSize, &lastModified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lookup file history: %w", err)
	}
	if lastModified.Valid {
		h.OldModified = time.Unix(lastModified.Int64, 0).UTC()
	}
	return &h, nil
}

// ListBlocklistHashes returns blocksetID's ordered top-level blocklist
// hashes, for re-emitting an unchanged file's FileEntry without
// rereading its content.
func (t *tx) ListBlocklistHashes(ctx context.Context, blocksetID int64) ([]model.BlocklistHash, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT blockset_id, idx, hash FROM blocklist_hash WHERE blockset_id = ? ORDER BY idx`, blocksetID)
	if err != nil {
		return nil, fmt.Errorf("list blocklist hashes: %w", err)
	}
	defer rows.Close()

	var out []model.BlocklistHash
	for rows.Next() {
		var h model.BlocklistHash
		if err := rows.Scan(&h.BlocksetID, &h.Index, &h.Hash); err != nil {
			return nil, fmt.Errorf("scan blocklist hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *tx) LookupFileLastModified(ctx context.Context, pathPrefixID int64, name string) (time.Time, error) {
	row := t.conn.QueryRowContext(ctx, `
		SELECT MAX(fe.last_modified)
		  FROM file_lookup fl
		  JOIN fileset_entry fe ON fe.file_id = fl.id
		 WHERE fl.path_prefix_id = ? AND fl.name = ?`,
		pathPrefixID, name)

	var lastModified sql.NullInt64
	if err := row.Scan(&lastModified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("lookup file last modified: %w", err)
	}
	if !lastModified.Valid {
		return time.Time{}, storage.ErrNotFound
	}
	return time.Unix(lastModified.Int64, 0).UTC(), nil
}

func (t *tx) SetChangeJournalData(ctx context.Context, d *model.ChangeJournalData) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO change_journal_data (file_id, journal_data) VALUES (?, ?)
		 ON CONFLICT(file_id) DO UPDATE SET journal_data = excluded.journal_data`,
		d.FileID, d.JournalData)
	if err != nil {
		return fmt.Errorf("set change journal data: %w", err)
	}
	return nil
}

func (t *tx) GetChangeJournalData(ctx context.Context, fileID int64) ([]byte, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT journal_data FROM change_journal_data WHERE file_id = ?`, fileID)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get change journal data: %w", err)
	}
	return data, nil
}

func (t *tx) InsertFileset(ctx context.Context, fs *model.Fileset) (int64, error) {
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO fileset ("timestamp", volume_id, is_full_backup) VALUES (?, ?, ?)`,
		fs.Timestamp.Unix(), fs.VolumeID, fs.IsFullBackup)
	if err != nil {
		return 0, fmt.Errorf("insert fileset: %w", err)
	}
	return res.LastInsertId()
}

// SetFilesetVolume repoints a fileset at its real Files volume once
// that volume has actually been uploaded -- a fileset row must exist
// (and be addable-to) before its file-list entries are known, so the
// caller first inserts it against a placeholder volume.
func (t *tx) SetFilesetVolume(ctx context.Context, filesetID, volumeID int64) error {
	_, err := t.conn.ExecContext(ctx,
		`UPDATE fileset SET volume_id = ? WHERE id = ?`, volumeID, filesetID)
	if err != nil {
		return fmt.Errorf("set fileset volume: %w", err)
	}
	return nil
}

// GetRemoteVolumeByName resolves a flushed block volume's row from
// within the same transaction that links it into an index volume, so
// the lookup and the link are atomic with each other.
func (t *tx) GetRemoteVolumeByName(ctx context.Context, name string) (*model.RemoteVolume, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT id, name, type, state, size, hash, delete_grace_period_seconds FROM remote_volume WHERE name = ?`, name)
	return scanRemoteVolume(row)
}

func (t *tx) AddFilesetEntry(ctx context.Context, e *model.FilesetEntry) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO fileset_entry (fileset_id, file_id, last_modified) VALUES (?, ?, ?)`,
		e.FilesetID, e.FileID, e.LastModified.Unix())
	if err != nil {
		return fmt.Errorf("add fileset entry: %w", err)
	}
	return nil
}

func (t *tx) SetOption(ctx context.Context, o *model.Option) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO option (fileset_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(fileset_id, key) DO UPDATE SET value = excluded.value`,
		o.FilesetID, o.Key, o.Value)
	if err != nil {
		return fmt.Errorf("set option: %w", err)
	}
	return nil
}

func (t *tx) InsertRemoteVolume(ctx context.Context, v *model.RemoteVolume) (int64, error) {
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO remote_volume (name, type, state, size, hash, delete_grace_period_seconds)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.Name, string(v.Type), string(v.State), v.Size, v.Hash, int64(v.DeleteGracePeriod.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("insert remote volume: %w", err)
	}
	return res.LastInsertId()
}

func (t *tx) SetVolumeState(ctx context.Context, volumeID int64, state model.VolumeState) error {
	var res sql.Result
	var err error
	if state == model.VolumeStateDeleting {
		res, err = t.conn.ExecContext(ctx,
			`UPDATE remote_volume SET state = ?, deleting_since = unixepoch() WHERE id = ?`,
			string(state), volumeID)
	} else {
		res, err = t.conn.ExecContext(ctx,
			`UPDATE remote_volume SET state = ? WHERE id = ?`, string(state), volumeID)
	}
	if err != nil {
		return fmt.Errorf("set volume state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set volume state: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set volume state: volume %d not found", volumeID)
	}
	return nil
}

func (t *tx) LinkIndexVolume(ctx context.Context, link *model.IndexBlockLink) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO index_block_link (index_volume_id, block_volume_id) VALUES (?, ?)`,
		link.IndexVolumeID, link.BlockVolumeID)
	if err != nil {
		return fmt.Errorf("link index volume: %w", err)
	}
	return nil
}
