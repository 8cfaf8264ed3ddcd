package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blockvault/blockvault/internal/apperr"
	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertVolume(t *testing.T, db *DB, name string, typ model.VolumeType) int64 {
	t.Helper()
	var id int64
	err := db.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
		var err error
		id, err = tx.InsertRemoteVolume(context.Background(), &model.RemoteVolume{
			Name: name, Type: typ, State: model.VolumeStateUploaded,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert volume %s: %v", name, err)
	}
	return id
}

func insertBlock(t *testing.T, db *DB, hash string, size, volumeID int64) int64 {
	t.Helper()
	var id int64
	err := db.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
		var err error
		id, err = tx.InsertBlock(context.Background(), &model.Block{Hash: hash, Size: size, VolumeID: volumeID})
		return err
	})
	if err != nil {
		t.Fatalf("insert block %s: %v", hash, err)
	}
	return id
}

func TestPrepareForDeleteReassignsToSurvivingDuplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	victim := insertVolume(t, db, "victim.blocks.zip", model.VolumeTypeBlocks)
	survivor := insertVolume(t, db, "survivor.blocks.zip", model.VolumeTypeBlocks)

	blockID := insertBlock(t, db, "deadbeef", 4096, victim)

	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddDuplicateBlock(ctx, blockID, survivor)
	})
	if err != nil {
		t.Fatalf("add duplicate block: %v", err)
	}

	err = db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.PrepareForDelete(ctx, victim, nil)
	})
	if err != nil {
		t.Fatalf("prepare for delete: %v", err)
	}

	b, err := db.FindBlock(ctx, "deadbeef", 4096)
	if err != nil {
		t.Fatalf("find block after reassignment: %v", err)
	}
	if b.VolumeID != survivor {
		t.Errorf("block volume_id = %d, want %d (survivor)", b.VolumeID, survivor)
	}
}

func TestPrepareForDeleteFatalWhenNoSurvivor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	victim := insertVolume(t, db, "victim.blocks.zip", model.VolumeTypeBlocks)
	insertBlock(t, db, "onlycopy", 4096, victim)

	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.PrepareForDelete(ctx, victim, nil)
	})
	if err == nil {
		t.Fatal("expected an error when a block has no surviving duplicate")
	}
	if !apperr.Is(err, apperr.KindInconsistentDatabase) {
		t.Errorf("expected KindInconsistentDatabase, got %v", err)
	}
}

func TestPrepareForDeleteExcludesOtherVictims(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	victim := insertVolume(t, db, "victim.blocks.zip", model.VolumeTypeBlocks)
	otherVictim := insertVolume(t, db, "other-victim.blocks.zip", model.VolumeTypeBlocks)
	realSurvivor := insertVolume(t, db, "real-survivor.blocks.zip", model.VolumeTypeBlocks)

	blockID := insertBlock(t, db, "multi", 1024, victim)

	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.AddDuplicateBlock(ctx, blockID, otherVictim); err != nil {
			return err
		}
		return tx.AddDuplicateBlock(ctx, blockID, realSurvivor)
	})
	if err != nil {
		t.Fatalf("add duplicate blocks: %v", err)
	}

	err = db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.PrepareForDelete(ctx, victim, []int64{otherVictim})
	})
	if err != nil {
		t.Fatalf("prepare for delete: %v", err)
	}

	b, err := db.FindBlock(ctx, "multi", 1024)
	if err != nil {
		t.Fatalf("find block: %v", err)
	}
	if b.VolumeID != realSurvivor {
		t.Errorf("block volume_id = %d, want %d (real survivor, not excluded other-victim)", b.VolumeID, realSurvivor)
	}
}

func TestPrepareForDeleteNoBlocksIsNoop(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	empty := insertVolume(t, db, "empty.blocks.zip", model.VolumeTypeBlocks)

	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.PrepareForDelete(ctx, empty, nil)
	})
	if err != nil {
		t.Fatalf("prepare for delete on an empty volume should be a no-op, got: %v", err)
	}
}
