package pipeline

import "time"

// SymlinkPolicy controls how the metadata pre-processor treats
// symbolic links.
type SymlinkPolicy string

const (
	SymlinkIgnore SymlinkPolicy = "Ignore"
	SymlinkStore  SymlinkPolicy = "Store"
)

// Options parameterises one backup pipeline run.
type Options struct {
	SymlinkPolicy SymlinkPolicy

	// SkipMetadata stores an empty Metadataset for directories instead
	// of collecting the platform's real attributes.
	SkipMetadata bool

	// CheckFiletimeOnly decides whether a file changed from its
	// last-modified timestamp alone, so a same-mtime content change is
	// not detected. The pre-processor runs the lighter
	// LookupFileLastModified query first and still runs the full
	// LookupFileHistory whenever the timestamp matches.
	CheckFiletimeOnly bool

	// DisableFiletimeCheck forces every file to be rehashed. The
	// pre-processor makes no history lookup at all in this mode,
	// neither LookupFileHistory nor LookupFileLastModified.
	DisableFiletimeCheck bool

	BlockSizeBytes  int64
	VolumeSizeBytes int64

	CompressionModule string
	EncryptionModule  string

	// FullBackup marks the run's Files volume as a full (not
	// incremental) listing.
	FullBackup bool

	// DeleteGracePeriod is stamped onto every remote volume this run
	// creates, and determines how long compact.SweepDeletable waits
	// after a volume is marked Deleting before it is safe to remove
	// from the backend.
	DeleteGracePeriod time.Duration
}
