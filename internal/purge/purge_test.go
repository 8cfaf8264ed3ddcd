package purge_test

import (
	"context"
	"io"
	"testing"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/purge"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/storage/sqlite"
)

// fakeBackend reports a fixed set of remote files, independent of any
// database state, so Scan's diff logic is exercised directly.
type fakeBackend struct{ names map[string]bool }

func (b fakeBackend) List(ctx context.Context) ([]remote.FileInfo, error) {
	var out []remote.FileInfo
	for name := range b.names {
		out = append(out, remote.FileInfo{Name: name, Size: 1})
	}
	return out, nil
}
func (b fakeBackend) Get(ctx context.Context, name, hash string, size int64) (string, error) {
	return "", nil
}
func (b fakeBackend) Put(ctx context.Context, name string, r io.Reader) error { return nil }
func (b fakeBackend) Delete(ctx context.Context, name string, size int64, preserve bool) error {
	return nil
}
func (b fakeBackend) WaitForEmpty(ctx context.Context) error { return nil }

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertVolume(t *testing.T, db *sqlite.DB, name string, typ model.VolumeType) int64 {
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

func TestScanFindsVolumeMissingFromRemote(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertVolume(t, db, "present.blocks.zip", model.VolumeTypeBlocks)
	insertVolume(t, db, "missing.blocks.zip", model.VolumeTypeBlocks)

	backend := fakeBackend{names: map[string]bool{"present.blocks.zip": true}}

	report, err := purge.Scan(ctx, db, backend)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.MissingVolumes) != 1 || report.MissingVolumes[0].Name != "missing.blocks.zip" {
		t.Fatalf("expected exactly missing.blocks.zip reported missing, got %v", report.MissingVolumes)
	}
}

func TestScanIgnoresVolumesAlreadyDeleting(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	id := insertVolume(t, db, "retiring.blocks.zip", model.VolumeTypeBlocks)
	if err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetVolumeState(ctx, id, model.VolumeStateDeleting)
	}); err != nil {
		t.Fatalf("set volume state: %v", err)
	}

	report, err := purge.Scan(ctx, db, fakeBackend{names: map[string]bool{}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.MissingVolumes) != 0 {
		t.Fatalf("expected no volumes reported, got %v", report.MissingVolumes)
	}
}

func TestMarkMissingTransitionsVolumesToDeleting(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	id := insertVolume(t, db, "gone.blocks.zip", model.VolumeTypeBlocks)

	report, err := purge.Scan(ctx, db, fakeBackend{names: map[string]bool{}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.MissingVolumes) != 1 {
		t.Fatalf("expected 1 missing volume, got %d", len(report.MissingVolumes))
	}

	if err := purge.MarkMissing(ctx, db, report, progress.NopReporter{}); err != nil {
		t.Fatalf("MarkMissing: %v", err)
	}

	vol, err := db.GetRemoteVolume(ctx, id)
	if err != nil {
		t.Fatalf("get volume: %v", err)
	}
	if vol.State != model.VolumeStateDeleting {
		t.Errorf("expected volume state Deleting, got %s", vol.State)
	}
}
