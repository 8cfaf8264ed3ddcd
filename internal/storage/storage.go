// Package storage defines the interface for the local index database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

// ErrDBNotInitialized is returned when a database feature is used before
// the index database has been opened and migrated.
var ErrDBNotInitialized = errors.New("index database not initialized")

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// Transaction exposes the subset of Storage methods that execute inside
// a single database transaction, so multi-step writes (e.g. dropping a
// fileset across its six dependent tables) either all land or none do.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # SQLite Specifics
//
//   - Uses BEGIN IMMEDIATE to acquire the write lock early
//   - Only one writer may hold the index database at a time (the
//     sqlite backend's Open takes an exclusive lock file for this)
type Transaction interface {
	// Blocks
	InsertBlock(ctx context.Context, b *model.Block) (int64, error)
	FindBlock(ctx context.Context, hash string, size int64) (*model.Block, error)
	MarkBlockDeleted(ctx context.Context, hash string, size, volumeID int64) error
	AddDuplicateBlock(ctx context.Context, blockID, volumeID int64) error
	ReassignBlockVolume(ctx context.Context, blockID, newVolumeID int64) error

	// PrepareForDelete reassigns every block whose primary copy lives in
	// victimVolumeID to a surviving DuplicateBlock not in otherVictims
	// (spec §4.6). Returns apperr.Inconsistent if any block has no
	// surviving copy.
	PrepareForDelete(ctx context.Context, victimVolumeID int64, otherVictims []int64) error

	// Blocksets
	InsertBlockset(ctx context.Context, bs *model.Blockset) (int64, error)
	FindBlocksetByHash(ctx context.Context, fullHash string, length int64) (*model.Blockset, error)
	AddBlocksetEntry(ctx context.Context, e *model.BlocksetEntry) error
	AddBlocklistHash(ctx context.Context, h *model.BlocklistHash) error
	InsertMetadataset(ctx context.Context, m *model.Metadataset) (int64, error)

	// FindBlocklistHashOccurrences returns every (blockset_id, index)
	// pair registered against a blocklist hash, so the recreate
	// engine's reconciliation step can turn a downloaded block
	// volume's declared blocklist back into blockset_entry rows (spec
	// §4.9 P3-P4).
	FindBlocklistHashOccurrences(ctx context.Context, hash string) ([]model.BlocklistHash, error)

	// Files
	InternPathPrefix(ctx context.Context, prefix string) (int64, error)
	UpsertFileLookup(ctx context.Context, f *model.FileLookup) (int64, error)
	SetChangeJournalData(ctx context.Context, d *model.ChangeJournalData) error
	GetChangeJournalData(ctx context.Context, fileID int64) ([]byte, error)

	// LookupFileHistory resolves everything the metadata pre-processor
	// needs about a previously-seen path in one query: its file_lookup
	// id, the modification time it last saw committed (via the
	// fileset_entry carrying the newest last_modified for that file),
	// its content length, and its old metadata hash/size. Returns
	// ErrNotFound if the path has never been backed up before.
	LookupFileHistory(ctx context.Context, pathPrefixID int64, name string) (*model.FileHistory, error)

	// LookupFileLastModified is a lighter, separate query that fetches
	// only the newest last_modified recorded for a path. The metadata
	// pre-processor runs it in CheckFiletimeOnly mode, before deciding
	// whether to run LookupFileHistory.
	LookupFileLastModified(ctx context.Context, pathPrefixID int64, name string) (time.Time, error)

	// ListBlocklistHashes returns a blockset's ordered top-level
	// blocklist hashes, needed to re-emit a file-list entry for a file
	// reused unchanged from an earlier backup.
	ListBlocklistHashes(ctx context.Context, blocksetID int64) ([]model.BlocklistHash, error)

	// Filesets
	InsertFileset(ctx context.Context, fs *model.Fileset) (int64, error)
	SetFilesetVolume(ctx context.Context, filesetID, volumeID int64) error
	AddFilesetEntry(ctx context.Context, e *model.FilesetEntry) error
	SetOption(ctx context.Context, o *model.Option) error
	DropFileset(ctx context.Context, filesetID int64) error

	// Remote volumes
	InsertRemoteVolume(ctx context.Context, v *model.RemoteVolume) (int64, error)
	SetVolumeState(ctx context.Context, volumeID int64, state model.VolumeState) error
	LinkIndexVolume(ctx context.Context, link *model.IndexBlockLink) error

	// GetRemoteVolumeByName resolves a volume row by name within the
	// current transaction, used to link a just-flushed block volume
	// into the index volume being assembled alongside it.
	GetRemoteVolumeByName(ctx context.Context, name string) (*model.RemoteVolume, error)
}

// Storage is the local index database: the authoritative record of
// which blocks, blocksets, files, and filesets exist, and which remote
// volumes currently back them.
type Storage interface {
	// Blocks
	FindBlock(ctx context.Context, hash string, size int64) (*model.Block, error)
	BlockQuery(ctx context.Context) (BlockLivenessQuerier, error)

	// Filesets
	ListFilesets(ctx context.Context) ([]*model.Fileset, error)
	GetFileset(ctx context.Context, filesetID int64) (*model.Fileset, error)
	ListFilesetEntries(ctx context.Context, filesetID int64) ([]*model.FilesetEntry, error)
	GetOptions(ctx context.Context, filesetID int64) (map[string]string, error)

	// Remote volumes
	ListRemoteVolumes(ctx context.Context, types ...model.VolumeType) ([]*model.RemoteVolume, error)
	GetRemoteVolume(ctx context.Context, volumeID int64) (*model.RemoteVolume, error)
	GetRemoteVolumeByName(ctx context.Context, name string) (*model.RemoteVolume, error)
	IndexVolumesFor(ctx context.Context, blockVolumeID int64) ([]*model.RemoteVolume, error)
	AllIndexBlockLinks(ctx context.Context) ([]model.IndexBlockLink, error)

	// Wasted space / compaction support
	VolumeUsage(ctx context.Context, volumeID int64) (active, inactive int64, err error)
	DeletableBlockVolumes(ctx context.Context, graceCutoff int64) ([]int64, error)

	// Retention support
	FilesetTimestamps(ctx context.Context) ([]int64, error)

	// ListBrokenFilesets returns every fileset that references at least
	// one block whose only surviving copies live in one of
	// missingVolumeIDs, alongside how many such unresolved blocks it
	// carries. Feeds the purge step that decides which filesets are no
	// longer fully restorable after a remote volume is lost outside the
	// normal compact/delete flow.
	ListBrokenFilesets(ctx context.Context, missingVolumeIDs []int64) ([]model.BrokenFileset, error)

	// VerifyBlocksetConsistency implements the recreate engine's P5
	// consistency check: every blockset's recorded length must equal
	// the sum of its blocks' sizes, and its block count must equal
	// ceil(length / blockSize). Returns the IDs of blocksets that fail
	// either check.
	VerifyBlocksetConsistency(ctx context.Context, blockSize int64) ([]int64, error)

	// Transactions
	//
	// RunInTransaction executes fn within a BEGIN IMMEDIATE transaction.
	// A nil return commits; any error rolls back; a panic inside fn
	// rolls back and re-panics.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	io.Closer
	Path() string
	UnderlyingDB() *sql.DB
	UnderlyingConn(ctx context.Context) (*sql.Conn, error)
}

// BlockLivenessQuerier answers "is this block still referenced" without
// re-querying the database for every call, per the cached liveness
// design (spec §4.2). A querier is scoped to one logical operation (one
// compaction pass, one recreate pass) and must be discarded afterward.
type BlockLivenessQuerier interface {
	IsLive(hash string, size int64) (bool, error)
	Close() error
}

// Config selects and parameterises the index database backend.
type Config struct {
	Backend string // currently only "sqlite"
	Path    string // database file path
}
