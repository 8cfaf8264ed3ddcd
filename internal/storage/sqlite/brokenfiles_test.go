package sqlite

import (
	"context"
	"testing"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

// insertFileInFileset wires a one-block file into a fileset: a
// blockset covering blockID, a file_lookup row for path, and the
// fileset_entry bridging it into filesetID. Returns the new file's id.
func insertFileInFileset(t *testing.T, db *DB, filesetID, blockID int64, path string) int64 {
	t.Helper()
	ctx := context.Background()
	var fileID int64
	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		bsID, err := tx.InsertBlockset(ctx, &model.Blockset{FullHash: "bs-" + path, Length: 1})
		if err != nil {
			return err
		}
		if err := tx.AddBlocksetEntry(ctx, &model.BlocksetEntry{BlocksetID: bsID, Index: 0, BlockID: blockID}); err != nil {
			return err
		}
		metaID, err := tx.InsertMetadataset(ctx, &model.Metadataset{BlocksetID: bsID})
		if err != nil {
			return err
		}
		prefixID, err := tx.InternPathPrefix(ctx, "/data")
		if err != nil {
			return err
		}
		fileID, err = tx.UpsertFileLookup(ctx, &model.FileLookup{
			PathPrefixID: prefixID, Name: path, BlocksetID: bsID, MetadataID: metaID,
		})
		if err != nil {
			return err
		}
		return tx.AddFilesetEntry(ctx, &model.FilesetEntry{FilesetID: filesetID, FileID: fileID})
	})
	if err != nil {
		t.Fatalf("insert file %s into fileset %d: %v", path, filesetID, err)
	}
	return fileID
}

func insertFileset(t *testing.T, db *DB, volumeID int64) int64 {
	t.Helper()
	var id int64
	err := db.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
		var err error
		id, err = tx.InsertFileset(context.Background(), &model.Fileset{VolumeID: volumeID})
		return err
	})
	if err != nil {
		t.Fatalf("insert fileset: %v", err)
	}
	return id
}

func TestListBrokenFilesetsFindsFileWithNoSurvivingCopy(t *testing.T) {
	db := openTestDB(t)

	indexVol := insertVolume(t, db, "idx.index.zip", model.VolumeTypeIndex)
	missing := insertVolume(t, db, "missing.blocks.zip", model.VolumeTypeBlocks)
	block := insertBlock(t, db, "deadbeef", 4096, missing)

	fs := insertFileset(t, db, indexVol)
	insertFileInFileset(t, db, fs, block, "broken.txt")

	broken, err := db.ListBrokenFilesets(context.Background(), []int64{missing})
	if err != nil {
		t.Fatalf("ListBrokenFilesets: %v", err)
	}
	if len(broken) != 1 {
		t.Fatalf("expected 1 broken fileset, got %d", len(broken))
	}
	if broken[0].FilesetID != fs {
		t.Errorf("expected fileset %d, got %d", fs, broken[0].FilesetID)
	}
	if broken[0].MissingBlocks != 1 {
		t.Errorf("expected 1 missing block, got %d", broken[0].MissingBlocks)
	}
}

func TestListBrokenFilesetsIgnoresBlockWithSurvivingDuplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	indexVol := insertVolume(t, db, "idx.index.zip", model.VolumeTypeIndex)
	missing := insertVolume(t, db, "missing.blocks.zip", model.VolumeTypeBlocks)
	survivor := insertVolume(t, db, "survivor.blocks.zip", model.VolumeTypeBlocks)
	block := insertBlock(t, db, "deadbeef", 4096, missing)

	if err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddDuplicateBlock(ctx, block, survivor)
	}); err != nil {
		t.Fatalf("add duplicate block: %v", err)
	}

	fs := insertFileset(t, db, indexVol)
	insertFileInFileset(t, db, fs, block, "safe.txt")

	broken, err := db.ListBrokenFilesets(ctx, []int64{missing})
	if err != nil {
		t.Fatalf("ListBrokenFilesets: %v", err)
	}
	if len(broken) != 0 {
		t.Fatalf("expected no broken filesets, got %d", len(broken))
	}
}

func TestListBrokenFilesetsEmptyMissingSet(t *testing.T) {
	db := openTestDB(t)
	broken, err := db.ListBrokenFilesets(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListBrokenFilesets: %v", err)
	}
	if broken != nil {
		t.Fatalf("expected nil result for empty missing set, got %v", broken)
	}
}
