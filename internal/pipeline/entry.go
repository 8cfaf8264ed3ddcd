package pipeline

import (
	"io"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

// ScanEntry is one filesystem entry as a directory walker produces it,
// before the metadata pre-processor has decided what becomes of it.
type ScanEntry struct {
	Path          string
	Type          model.EntryType
	ModTime       time.Time
	Size          int64
	SymlinkTarget string

	// Open returns a fresh reader over the entry's content. Only
	// consulted for regular files; nil for folders and symlinks.
	Open func() (io.ReadCloser, error)
}

// PreProcessedFile is what the metadata pre-processor forwards
// downstream for a regular file: the original entry plus everything a
// single database lookup could tell it about the file's last-known
// state, so the splitter/hasher stage can decide whether to reuse the
// existing blockset without reading the file at all.
type PreProcessedFile struct {
	Entry        ScanEntry
	PathPrefixID int64

	// HasHistory is false the first time this path is ever seen.
	HasHistory        bool
	OldFileID         int64
	OldModified       time.Time
	ContentBlocksetID int64
	OldHash           string
	LastFileSize      int64
	OldMetaHash       string
	OldMetaSize       int64
}

// Unchanged reports whether the file can skip rehashing because its
// last-known state still matches. In CheckFiletimeOnly mode (timeOnly)
// only the modification time is compared; otherwise size is compared
// too. Both compare against what LookupFileHistory fetched.
// DisableFiletimeCheck callers should never call Unchanged at all --
// that mode exists precisely to force a rehash every run.
func (p *PreProcessedFile) Unchanged(timeOnly bool) bool {
	if !p.HasHistory || !p.Entry.ModTime.Equal(p.OldModified) {
		return false
	}
	if timeOnly {
		return true
	}
	return p.Entry.Size == p.LastFileSize
}
