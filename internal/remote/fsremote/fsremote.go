// Package fsremote implements remote.Backend over a local or mounted
// directory, used both for restore-from-external-media workflows and
// as the reference backend exercised by the engine's own tests.
package fsremote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blockvault/blockvault/internal/remote"
)

// Backend stores every volume as a plain file under Dir.
type Backend struct {
	Dir string
}

// New creates a Backend rooted at dir, creating it if necessary.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create remote directory: %w", err)
	}
	return &Backend{Dir: dir}, nil
}

func (b *Backend) List(ctx context.Context) ([]remote.FileInfo, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, fmt.Errorf("list remote directory: %w", err)
	}
	var out []remote.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat remote entry %s: %w", e.Name(), err)
		}
		out = append(out, remote.FileInfo{Name: e.Name(), Size: info.Size()})
	}
	return out, nil
}

func (b *Backend) Get(ctx context.Context, name string, hash string, size int64) (string, error) {
	src := filepath.Join(b.Dir, name)
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat remote file %s: %w", name, err)
	}
	if size != 0 && info.Size() != size {
		return "", fmt.Errorf("remote file %s: size mismatch (expected %d, got %d)", name, size, info.Size())
	}

	tmp, err := os.CreateTemp("", "blockvault-fsremote-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	h := sha256.New()
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open remote file %s: %w", name, err)
	}
	defer in.Close()

	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		return "", fmt.Errorf("copy remote file %s: %w", name, err)
	}

	if hash != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != hash {
			os.Remove(tmp.Name())
			return "", fmt.Errorf("remote file %s: hash mismatch (expected %s, got %s)", name, hash, got)
		}
	}

	return tmp.Name(), nil
}

func (b *Backend) Put(ctx context.Context, name string, r io.Reader) error {
	dst := filepath.Join(b.Dir, name)
	tmp := dst + ".partial"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write remote file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close remote file %s: %w", name, err)
	}
	// Atomic rename so a crash mid-upload never leaves a
	// partially-written file visible under its final name.
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("publish remote file %s: %w", name, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, name string, size int64, preserve bool) error {
	path := filepath.Join(b.Dir, name)
	if preserve {
		trashDir := filepath.Join(b.Dir, ".trash")
		if err := os.MkdirAll(trashDir, 0o755); err != nil {
			return fmt.Errorf("create trash directory: %w", err)
		}
		return os.Rename(path, filepath.Join(trashDir, name))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete remote file %s: %w", name, err)
	}
	return nil
}

// WaitForEmpty is a no-op: every Put and Delete above is synchronous.
func (b *Backend) WaitForEmpty(ctx context.Context) error { return nil }

var _ remote.Backend = (*Backend)(nil)
