package fsremote_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blockvault/blockvault/internal/remote/fsremote"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := fsremote.New(t.TempDir())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	content := "hello, blockvault"
	if err := b.Put(ctx, "vol1.gz", strings.NewReader(content)); err != nil {
		t.Fatalf("put: %v", err)
	}

	tmpPath, err := b.Get(ctx, "vol1.gz", "", int64(len(content)))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer os.Remove(tmpPath)

	got, err := os.ReadFile(tmpPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != content {
		t.Errorf("downloaded content = %q, want %q", got, content)
	}
}

func TestGetRejectsSizeMismatch(t *testing.T) {
	ctx := context.Background()
	b, err := fsremote.New(t.TempDir())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if err := b.Put(ctx, "vol1.gz", strings.NewReader("abc")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := b.Get(ctx, "vol1.gz", "", 999); err == nil {
		t.Error("expected a size mismatch error")
	}
}

func TestGetRejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	b, err := fsremote.New(t.TempDir())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if err := b.Put(ctx, "vol1.gz", strings.NewReader("abc")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := b.Get(ctx, "vol1.gz", "0000000000000000000000000000000000000000000000000000000000000000", 3); err == nil {
		t.Error("expected a hash mismatch error")
	}
}

func TestListEnumeratesUploadedVolumes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := fsremote.New(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	for _, name := range []string{"a.gz", "b.gz"} {
		if err := b.Put(ctx, name, strings.NewReader(name)); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}

	got, err := b.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestDeletePreserveMovesToTrash(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := fsremote.New(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if err := b.Put(ctx, "vol1.gz", strings.NewReader("abc")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := b.Delete(ctx, "vol1.gz", 3, true); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "vol1.gz")); !os.IsNotExist(err) {
		t.Error("expected original file to be gone after preserved delete")
	}
	if _, err := os.Stat(filepath.Join(dir, ".trash", "vol1.gz")); err != nil {
		t.Errorf("expected file in trash: %v", err)
	}
}

func TestDeleteWithoutPreserveRemovesOutright(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := fsremote.New(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if err := b.Put(ctx, "vol1.gz", strings.NewReader("abc")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := b.Delete(ctx, "vol1.gz", 3, false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "vol1.gz")); !os.IsNotExist(err) {
		t.Error("expected file to be gone")
	}
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	ctx := context.Background()
	b, err := fsremote.New(t.TempDir())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if err := b.Delete(ctx, "missing.gz", 0, false); err != nil {
		t.Errorf("delete missing file: %v", err)
	}
}
