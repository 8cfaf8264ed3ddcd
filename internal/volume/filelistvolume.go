package volume

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

// FileEntry is one path's record within a file-list volume.
type FileEntry struct {
	Type                model.EntryType `json:"type"`
	Path                string          `json:"path"`
	Time                time.Time       `json:"time"`
	Size                int64           `json:"size"`
	Hash                string          `json:"hash"`
	BlocklistHashes     []string        `json:"blocklist_hashes,omitempty"`
	MetaHash            string          `json:"meta_hash"`
	MetaSize            int64           `json:"meta_size"`
	MetaBlocklistHashes []string        `json:"meta_blocklist_hashes,omitempty"`
	BlockHash           string          `json:"block_hash,omitempty"`
}

type fileListManifest struct {
	IsFullBackup bool        `json:"is_full_backup"`
	Entries      []FileEntry `json:"entries"`
}

// FileListVolumeWriter accumulates one backup's path listing.
type FileListVolumeWriter struct {
	manifest fileListManifest
}

func NewFileListVolumeWriter(isFullBackup bool) *FileListVolumeWriter {
	return &FileListVolumeWriter{manifest: fileListManifest{IsFullBackup: isFullBackup}}
}

func (w *FileListVolumeWriter) AddEntry(e FileEntry) {
	w.manifest.Entries = append(w.manifest.Entries, e)
}

func (w *FileListVolumeWriter) WriteTo(dst io.Writer) error {
	enc := json.NewEncoder(dst)
	if err := enc.Encode(w.manifest); err != nil {
		return fmt.Errorf("write file-list volume: %w", err)
	}
	return nil
}

// FileListVolumeReader exposes a downloaded file-list volume's
// contents.
type FileListVolumeReader struct {
	manifest fileListManifest
}

func ReadFileListVolume(r io.Reader) (*FileListVolumeReader, error) {
	var m fileListManifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("read file-list volume: %w", err)
	}
	return &FileListVolumeReader{manifest: m}, nil
}

func (r *FileListVolumeReader) IsFullBackup() bool   { return r.manifest.IsFullBackup }
func (r *FileListVolumeReader) Entries() []FileEntry { return r.manifest.Entries }
