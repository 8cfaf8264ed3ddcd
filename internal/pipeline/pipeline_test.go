package pipeline_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blockvault/blockvault/internal/codec"
	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/pipeline"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/storage/sqlite"
)

type fakeBackend struct {
	files map[string][]byte
	dir   string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{files: make(map[string][]byte), dir: t.TempDir()}
}

func (b *fakeBackend) List(ctx context.Context) ([]remote.FileInfo, error) {
	out := make([]remote.FileInfo, 0, len(b.files))
	for name, data := range b.files {
		out = append(out, remote.FileInfo{Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func (b *fakeBackend) Get(ctx context.Context, name, hash string, size int64) (string, error) {
	p := filepath.Join(b.dir, name)
	if err := os.WriteFile(p, b.files[name], 0o600); err != nil {
		return "", err
	}
	return p, nil
}

func (b *fakeBackend) Put(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.files[name] = data
	return nil
}

func (b *fakeBackend) Delete(ctx context.Context, name string, size int64, preserve bool) error {
	delete(b.files, name)
	return nil
}

func (b *fakeBackend) WaitForEmpty(ctx context.Context) error { return nil }

func newRegistry() *codec.Registry {
	reg := codec.NewRegistry()
	reg.RegisterCompressor(codec.GzipCompressor{})
	return reg
}

func TestStreamBlockSplitterDedupesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	backend := newFakeBackend(t)
	vm := pipeline.NewVolumeManager(db, backend, newRegistry(), pipeline.Options{
		BlockSizeBytes: 8, VolumeSizeBytes: 1 << 20,
		CompressionModule: "gz", EncryptionModule: "",
	})
	splitter := &pipeline.StreamBlockSplitter{Storage: db, Writer: vm, Options: pipeline.Options{BlockSizeBytes: 8}}

	content := []byte("identical-content")
	sr1, err := splitter.Split(ctx, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("split 1: %v", err)
	}
	sr2, err := splitter.Split(ctx, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("split 2: %v", err)
	}
	if sr1.BlocksetID != sr2.BlocksetID {
		t.Errorf("blockset ids differ for identical content: %d != %d", sr1.BlocksetID, sr2.BlocksetID)
	}
	if len(sr2.NewBlocklists) != 0 {
		t.Errorf("second split of already-known content registered %d new blocklists, want 0", len(sr2.NewBlocklists))
	}
	if err := vm.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(backend.files) != 1 {
		t.Errorf("len(backend.files) = %d, want 1 (identical content dedup should write one block volume)", len(backend.files))
	}
}

func TestMetadataPreProcessorSymlinkPolicies(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	backend := newFakeBackend(t)
	vm := pipeline.NewVolumeManager(db, backend, newRegistry(), pipeline.Options{
		BlockSizeBytes: 1024, VolumeSizeBytes: 1 << 20, CompressionModule: "gz",
	})
	splitter := &pipeline.StreamBlockSplitter{Storage: db, Writer: vm, Options: pipeline.Options{BlockSizeBytes: 1024}}

	ignored := &pipeline.MetadataPreProcessor{
		Storage: db, Splitter: splitter,
		Options: pipeline.Options{SymlinkPolicy: pipeline.SymlinkIgnore},
	}
	filesetID, err := insertTestFileset(ctx, db)
	if err != nil {
		t.Fatalf("insert fileset: %v", err)
	}

	out, fe, err := ignored.Process(ctx, pipeline.ScanEntry{Path: "/a/link", Type: model.EntrySymlink, SymlinkTarget: "/a/target"}, filesetID)
	if err != nil {
		t.Fatalf("process ignored symlink: %v", err)
	}
	if out != nil || fe != nil {
		t.Errorf("expected nil result for ignored symlink, got pre=%+v fe=%+v", out, fe)
	}

	stored := &pipeline.MetadataPreProcessor{
		Storage: db, Splitter: splitter,
		Options: pipeline.Options{SymlinkPolicy: pipeline.SymlinkStore},
	}
	out, fe, err = stored.Process(ctx, pipeline.ScanEntry{Path: "/a/link2", Type: model.EntrySymlink, SymlinkTarget: "/a/target2"}, filesetID)
	if err != nil {
		t.Fatalf("process stored symlink: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil pre-processed result for stored symlink (handled inline), got %+v", out)
	}
	if fe == nil {
		t.Fatal("expected a FileEntry for stored symlink")
	}
	if fe.Path != "/a/link2" || fe.Type != model.EntrySymlink {
		t.Errorf("unexpected FileEntry for stored symlink: %+v", fe)
	}
}

func TestMetadataPreProcessorDirectory(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	backend := newFakeBackend(t)
	vm := pipeline.NewVolumeManager(db, backend, newRegistry(), pipeline.Options{
		BlockSizeBytes: 1024, VolumeSizeBytes: 1 << 20, CompressionModule: "gz",
	})
	splitter := &pipeline.StreamBlockSplitter{Storage: db, Writer: vm, Options: pipeline.Options{BlockSizeBytes: 1024}}
	pre := &pipeline.MetadataPreProcessor{Storage: db, Splitter: splitter}

	filesetID, err := insertTestFileset(ctx, db)
	if err != nil {
		t.Fatalf("insert fileset: %v", err)
	}

	out, fe, err := pre.Process(ctx, pipeline.ScanEntry{Path: "/a/dir", Type: model.EntryFolder, ModTime: time.Now()}, filesetID)
	if err != nil {
		t.Fatalf("process directory: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil pre-processed result for directory (handled inline), got %+v", out)
	}
	if fe == nil {
		t.Fatal("expected a FileEntry for directory")
	}
	if fe.Path != "/a/dir" || fe.Type != model.EntryFolder {
		t.Errorf("unexpected FileEntry for directory: %+v", fe)
	}
}

func TestReadFromEitherObservesBothChannels(t *testing.T) {
	ctx := context.Background()
	a := make(chan int, 1)
	b := make(chan int, 1)
	a <- 1

	v, ok, err := pipeline.ReadFromEither(ctx, a, b)
	if err != nil || !ok || v != 1 {
		t.Fatalf("read from a: got (%d, %v, %v)", v, ok, err)
	}

	b <- 2
	v, ok, err = pipeline.ReadFromEither(ctx, a, b)
	if err != nil || !ok || v != 2 {
		t.Fatalf("read from b: got (%d, %v, %v)", v, ok, err)
	}
}

func TestReadFromEitherRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := make(chan int)
	b := make(chan int)

	_, _, err := pipeline.ReadFromEither(ctx, a, b)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func insertTestFileset(ctx context.Context, db *sqlite.DB) (int64, error) {
	var filesetID int64
	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		volID, err := tx.InsertRemoteVolume(ctx, &model.RemoteVolume{
			Name: "test-index.dblock", Type: model.VolumeTypeIndex, State: model.VolumeStateUploaded,
		})
		if err != nil {
			return err
		}
		id, err := tx.InsertFileset(ctx, &model.Fileset{Timestamp: time.Unix(1700000000, 0), VolumeID: volID})
		if err != nil {
			return err
		}
		filesetID = id
		return nil
	})
	return filesetID, err
}

func TestBackupPipelineRunStoresOneFile(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	backend := newFakeBackend(t)
	opts := pipeline.Options{
		BlockSizeBytes: 1024, VolumeSizeBytes: 1 << 20,
		CompressionModule: "gz", EncryptionModule: "",
	}
	vm := pipeline.NewVolumeManager(db, backend, newRegistry(), opts)
	splitter := &pipeline.StreamBlockSplitter{Storage: db, Writer: vm, Options: opts}
	pre := &pipeline.MetadataPreProcessor{Storage: db, Splitter: splitter, Options: opts}

	bp := &pipeline.BackupPipeline{
		Storage: db, Backend: backend, PreProcessor: pre, Splitter: splitter, VolumeMgr: vm, Options: opts, Concurrency: 2,
	}

	filesetID, err := insertTestFileset(ctx, db)
	if err != nil {
		t.Fatalf("insert fileset: %v", err)
	}

	entries := make(chan pipeline.ScanEntry, 1)
	entries <- pipeline.ScanEntry{
		Path: "/data/hello.txt", Type: model.EntryFile, ModTime: time.Now(), Size: 5,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("hello")), nil },
	}
	close(entries)

	if err := bp.Run(ctx, entries, filesetID); err != nil {
		t.Fatalf("run: %v", err)
	}

	entriesList, err := db.ListFilesetEntries(ctx, filesetID)
	if err != nil {
		t.Fatalf("list fileset entries: %v", err)
	}
	if len(entriesList) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entriesList))
	}

	fs, err := db.GetFileset(ctx, filesetID)
	if err != nil {
		t.Fatalf("get fileset: %v", err)
	}
	filesVol, err := db.GetRemoteVolume(ctx, fs.VolumeID)
	if err != nil {
		t.Fatalf("get fileset's volume: %v", err)
	}
	if filesVol.Type != model.VolumeTypeFiles {
		t.Errorf("fileset.VolumeID points at a %s volume, want %s", filesVol.Type, model.VolumeTypeFiles)
	}
	if filesVol.State != model.VolumeStateUploaded {
		t.Errorf("files volume state = %s, want %s", filesVol.State, model.VolumeStateUploaded)
	}

	indexVols, err := db.ListRemoteVolumes(ctx, model.VolumeTypeIndex)
	if err != nil {
		t.Fatalf("list index volumes: %v", err)
	}
	if len(indexVols) != 1 {
		t.Fatalf("len(indexVols) = %d, want 1", len(indexVols))
	}
	links, err := db.AllIndexBlockLinks(ctx)
	if err != nil {
		t.Fatalf("list index block links: %v", err)
	}
	if len(links) == 0 {
		t.Error("expected at least one index-to-block volume link")
	}
}
