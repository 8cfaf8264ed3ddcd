package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blockvault/blockvault/internal/apperr"
)

// DropFileset removes one fileset and cascades the deletion through
// its six dependent tables: fileset_entry, file_lookup,
// change_journal_data, blockset (with blockset_entry and
// blocklist_hash), metadataset, and option. A file_lookup row, its
// blockset, and the blocks within that blockset are only removed once
// no other fileset still references them — backups share structure,
// and dropping one must never touch data another backup still needs.
//
// The fileset row's own DELETE must remove exactly one row, and a
// file_lookup, metadataset or block row the cascade reads must exist;
// a failure of either means the index has diverged from the invariants
// the rest of the engine assumes, which is always fatal
// (apperr.Inconsistent), never a warn-and-continue condition. The row
// counts of the cascade's other DELETE statements are not checked.
func (t *tx) DropFileset(ctx context.Context, filesetID int64) error {
	fileIDs, err := t.filesetFileIDs(ctx, filesetID)
	if err != nil {
		return err
	}

	if _, err := t.conn.ExecContext(ctx, `DELETE FROM option WHERE fileset_id = ?`, filesetID); err != nil {
		return fmt.Errorf("drop fileset options: %w", err)
	}

	if _, err := t.conn.ExecContext(ctx, `DELETE FROM fileset_entry WHERE fileset_id = ?`, filesetID); err != nil {
		return fmt.Errorf("drop fileset entries: %w", err)
	}

	for _, fileID := range fileIDs {
		stillReferenced, err := t.fileStillReferenced(ctx, fileID)
		if err != nil {
			return err
		}
		if stillReferenced {
			continue
		}
		if err := t.dropOrphanedFile(ctx, fileID); err != nil {
			return err
		}
	}

	res, err := t.conn.ExecContext(ctx, `DELETE FROM fileset WHERE id = ?`, filesetID)
	if err != nil {
		return fmt.Errorf("drop fileset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop fileset: %w", err)
	}
	if n != 1 {
		return apperr.Inconsistent(nil, "drop fileset %d: expected to remove exactly one row, removed %d", filesetID, n)
	}
	return nil
}

func (t *tx) filesetFileIDs(ctx context.Context, filesetID int64) ([]int64, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT file_id FROM fileset_entry WHERE fileset_id = ?`, filesetID)
	if err != nil {
		return nil, fmt.Errorf("list fileset file ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list fileset file ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *tx) fileStillReferenced(ctx context.Context, fileID int64) (bool, error) {
	var n int
	row := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fileset_entry WHERE file_id = ?`, fileID)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("check file reference count: %w", err)
	}
	return n > 0, nil
}

// dropOrphanedFile removes a file_lookup row no fileset references
// anymore, along with its change journal cookie, and then drops its
// blockset and metadataset if those, in turn, are no longer referenced
// by any other file_lookup row.
func (t *tx) dropOrphanedFile(ctx context.Context, fileID int64) error {
	var blocksetID, metadataID int64
	row := t.conn.QueryRowContext(ctx,
		`SELECT blockset_id, metadata_id FROM file_lookup WHERE id = ?`, fileID)
	if err := row.Scan(&blocksetID, &metadataID); err != nil {
		if err == sql.ErrNoRows {
			return apperr.Inconsistent(err, "drop orphaned file %d: file_lookup row missing", fileID)
		}
		return fmt.Errorf("read orphaned file: %w", err)
	}

	if _, err := t.conn.ExecContext(ctx, `DELETE FROM change_journal_data WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("drop change journal data: %w", err)
	}

	if _, err := t.conn.ExecContext(ctx, `DELETE FROM file_lookup WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("drop file lookup: %w", err)
	}

	var metaBlocksetID int64
	row = t.conn.QueryRowContext(ctx,
		`SELECT blockset_id FROM metadataset WHERE id = ?`, metadataID)
	if err := row.Scan(&metaBlocksetID); err != nil {
		if err == sql.ErrNoRows {
			return apperr.Inconsistent(err, "drop orphaned file %d: metadataset %d missing", fileID, metadataID)
		}
		return fmt.Errorf("read metadataset: %w", err)
	}

	if blocksetID >= 0 {
		if err := t.dropBlocksetIfOrphaned(ctx, blocksetID); err != nil {
			return err
		}
	}

	if err := t.dropMetadatasetIfOrphaned(ctx, metadataID, metaBlocksetID); err != nil {
		return err
	}

	return nil
}

func (t *tx) dropMetadatasetIfOrphaned(ctx context.Context, metadataID, blocksetID int64) error {
	var n int
	row := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_lookup WHERE metadata_id = ?`, metadataID)
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("check metadataset reference count: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := t.conn.ExecContext(ctx, `DELETE FROM metadataset WHERE id = ?`, metadataID); err != nil {
		return fmt.Errorf("drop metadataset: %w", err)
	}
	return t.dropBlocksetIfOrphaned(ctx, blocksetID)
}

// dropBlocksetIfOrphaned removes a blockset, its entries, and its
// blocklist hashes once no file_lookup or metadataset row points at it
// anymore, then releases any block whose last reference was in this
// blockset.
func (t *tx) dropBlocksetIfOrphaned(ctx context.Context, blocksetID int64) error {
	var fileRefs, metaRefs int
	if err := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_lookup WHERE blockset_id = ?`, blocksetID).Scan(&fileRefs); err != nil {
		return fmt.Errorf("check blockset file references: %w", err)
	}
	if err := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metadataset WHERE blockset_id = ?`, blocksetID).Scan(&metaRefs); err != nil {
		return fmt.Errorf("check blockset metadata references: %w", err)
	}
	if fileRefs+metaRefs > 0 {
		return nil
	}

	blockIDs, err := t.blocksInBlockset(ctx, blocksetID)
	if err != nil {
		return err
	}

	if _, err := t.conn.ExecContext(ctx, `DELETE FROM blocklist_hash WHERE blockset_id = ?`, blocksetID); err != nil {
		return fmt.Errorf("drop blocklist hashes: %w", err)
	}
	if _, err := t.conn.ExecContext(ctx, `DELETE FROM blockset_entry WHERE blockset_id = ?`, blocksetID); err != nil {
		return fmt.Errorf("drop blockset entries: %w", err)
	}
	if _, err := t.conn.ExecContext(ctx, `DELETE FROM blockset WHERE id = ?`, blocksetID); err != nil {
		return fmt.Errorf("drop blockset: %w", err)
	}

	for _, blockID := range blockIDs {
		if err := t.releaseBlockIfOrphaned(ctx, blockID); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) blocksInBlockset(ctx context.Context, blocksetID int64) ([]int64, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT DISTINCT block_id FROM blockset_entry WHERE blockset_id = ?`, blocksetID)
	if err != nil {
		return nil, fmt.Errorf("list blockset blocks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list blockset blocks: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// releaseBlockIfOrphaned moves a block to deleted_block once no
// blockset_entry references it anymore. It never touches duplicate
// copies directly; those are reconciled by the compaction engine's
// wasted-space pass.
func (t *tx) releaseBlockIfOrphaned(ctx context.Context, blockID int64) error {
	var n int
	if err := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blockset_entry WHERE block_id = ?`, blockID).Scan(&n); err != nil {
		return fmt.Errorf("check block reference count: %w", err)
	}
	if n > 0 {
		return nil
	}

	var hash string
	var size, volumeID int64
	row := t.conn.QueryRowContext(ctx,
		`SELECT hash, size, volume_id FROM block WHERE id = ?`, blockID)
	if err := row.Scan(&hash, &size, &volumeID); err != nil {
		if err == sql.ErrNoRows {
			return apperr.Inconsistent(err, "release block %d: block row missing", blockID)
		}
		return fmt.Errorf("read block: %w", err)
	}

	if err := t.MarkBlockDeleted(ctx, hash, size, volumeID); err != nil {
		return err
	}
	return nil
}
