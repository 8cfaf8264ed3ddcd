package model

import "time"

// Fileset is one snapshot in time.
type Fileset struct {
	ID           int64
	Timestamp    time.Time
	VolumeID     int64
	IsFullBackup bool
}

// FilesetEntry is the many-to-many bridge between a Fileset and the
// FileLookup rows it contains.
type FilesetEntry struct {
	FilesetID    int64
	FileID       int64
	LastModified time.Time
}

// Option is a per-fileset key/value settings snapshot (blocksize,
// compression module, encryption module at the time that fileset was
// written). Consulted by the pre-downgrade safeguard.
type Option struct {
	FilesetID int64
	Key       string
	Value     string
}

// BrokenFileset is a fileset found to reference at least one block
// whose only surviving copies live in a volume reported missing from
// the remote -- the file can no longer be restored in full.
type BrokenFileset struct {
	FilesetID     int64
	Timestamp     time.Time
	MissingBlocks int
}
