package recreate_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/recreate"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage/sqlite"
	"github.com/blockvault/blockvault/internal/volume"
)

// fakeBackend is an in-memory remote.Backend backed by a map, used so
// recreate's engine can be exercised without a real transport.
type fakeBackend struct {
	dir   string
	files map[string][]byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{dir: t.TempDir(), files: make(map[string][]byte)}
}

func (b *fakeBackend) put(name string, data []byte) { b.files[name] = data }

func (b *fakeBackend) List(ctx context.Context) ([]remote.FileInfo, error) {
	out := make([]remote.FileInfo, 0, len(b.files))
	for name, data := range b.files {
		out = append(out, remote.FileInfo{Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func (b *fakeBackend) Get(ctx context.Context, name, hash string, size int64) (string, error) {
	data, ok := b.files[name]
	if !ok {
		return "", fmt.Errorf("fake backend: %s not found", name)
	}
	tmp := filepath.Join(b.dir, name)
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", err
	}
	return tmp, nil
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

func TestEngineRunRecoversSingleBlockFile(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)

	fileTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	blockName := remote.Generate(remote.Descriptor{
		Prefix: "bv", Type: model.VolumeTypeBlocks, GUID: "blockguid",
		Time: fileTime, Compression: "gz",
	})
	indexName := remote.Generate(remote.Descriptor{
		Prefix: "bv", Type: model.VolumeTypeIndex, GUID: "indexguid",
		Time: fileTime, Compression: "gz",
	})
	filesName := remote.Generate(remote.Descriptor{
		Prefix: "bv", Type: model.VolumeTypeFiles, GUID: "filesguid",
		Time: fileTime, Compression: "gz",
	})

	fw := volume.NewFileListVolumeWriter(true)
	fw.AddEntry(volume.FileEntry{
		Type:      model.EntryFile,
		Path:      "/a/b.txt",
		Time:      fileTime,
		Size:      10,
		Hash:      "filehash",
		BlockHash: "blockhash1",
		MetaHash:  "metahash1",
		MetaSize:  0,
	})
	var filesBuf bytes.Buffer
	if err := fw.WriteTo(&filesBuf); err != nil {
		t.Fatalf("write file-list volume: %v", err)
	}
	backend.put(filesName, filesBuf.Bytes())

	backend.put(blockName, []byte("irrelevant-for-this-test"))

	iw := volume.NewIndexVolumeWriter()
	iw.AddVolume(volume.IndexedVolume{
		Filename: blockName,
		Hash:     "blockvolhash",
		Length:   10,
		Blocks:   []volume.IndexedBlock{{Hash: "blockhash1", Size: 10}},
	})
	iw.AddBlocklist(volume.IndexedBlocklist{Hash: "blockhash1", Blocklist: []string{"blockhash1"}})
	var indexBuf bytes.Buffer
	if err := iw.WriteTo(&indexBuf); err != nil {
		t.Fatalf("write index volume: %v", err)
	}
	backend.put(indexName, indexBuf.Bytes())

	dbPath := filepath.Join(t.TempDir(), "recreate.db")
	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	eng := &recreate.Engine{
		Storage: db,
		Backend: backend,
		Options: recreate.Options{
			BlockSizeBytes:     10,
			CompressionModules: []string{"gz"},
			EncryptionModules:  []string{""},
		},
	}

	res, err := eng.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.FilesetsRecovered != 1 {
		t.Errorf("FilesetsRecovered = %d, want 1", res.FilesetsRecovered)
	}
	if res.IndexVolumesRecovered != 1 {
		t.Errorf("IndexVolumesRecovered = %d, want 1", res.IndexVolumesRecovered)
	}
	if len(res.InconsistentBlocksets) != 0 {
		t.Errorf("InconsistentBlocksets = %v, want none", res.InconsistentBlocksets)
	}

	filesets, err := db.ListFilesets(ctx)
	if err != nil {
		t.Fatalf("list filesets: %v", err)
	}
	if len(filesets) != 1 {
		t.Fatalf("len(filesets) = %d, want 1", len(filesets))
	}

	block, err := db.FindBlock(ctx, "blockhash1", 10)
	if err != nil {
		t.Fatalf("find recovered block: %v", err)
	}
	if block.Size != 10 {
		t.Errorf("block size = %d, want 10", block.Size)
	}
}

func TestEngineRunFailsOnEmptyRemote(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)

	dbPath := filepath.Join(t.TempDir(), "recreate.db")
	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	eng := &recreate.Engine{Storage: db, Backend: backend}
	if _, err := eng.Run(ctx); err == nil {
		t.Fatal("expected an error for an empty remote")
	}
}
