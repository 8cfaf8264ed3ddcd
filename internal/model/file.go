package model

import "time"

// PathPrefix is an interned directory prefix, enabling compact storage
// and fast "children of" queries.
type PathPrefix struct {
	ID     int64
	Prefix string
}

// FileLookup is a deduped file identity. Folders and symlinks use
// SentinelBlocksetID in place of a real blockset.
type FileLookup struct {
	ID           int64
	PathPrefixID int64
	Name         string
	BlocksetID   int64
	MetadataID   int64
}

// EntryType distinguishes the kinds of filesystem entry a FileLookup
// row can represent.
type EntryType string

const (
	EntryFile    EntryType = "File"
	EntryFolder  EntryType = "Folder"
	EntrySymlink EntryType = "Symlink"
)

// ChangeJournalData is an opaque platform change-journal cookie (e.g.
// a USN journal id) that lets the next backup skip rehashing a file
// that is known to be unchanged. Deleted whenever its owning
// FileLookup row becomes orphaned (fileset dropper cascade, step 2).
type ChangeJournalData struct {
	FileID      int64
	JournalData []byte
}

// FileHistory is what the metadata pre-processor looks up about a path
// already known from a previous backup: enough to decide, without a
// second query, whether the file can be skipped unread this run.
type FileHistory struct {
	FileID            int64
	OldModified       time.Time
	ContentBlocksetID int64
	OldHash           string
	LastFileSize      int64
	OldMetaHash       string
	OldMetaSize       int64
}
