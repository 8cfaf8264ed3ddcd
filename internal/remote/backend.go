package remote

import (
	"context"
	"io"
)

// FileInfo is one entry returned by Backend.List.
type FileInfo struct {
	Name string
	Size int64
}

// Backend is the capability the core consumes from a remote transport.
// Concrete transports (S3, SFTP, a local directory) implement this;
// the core never imports a transport package directly.
type Backend interface {
	// List enumerates every file currently on the remote.
	List(ctx context.Context) ([]FileInfo, error)

	// Get downloads name into a local temp file and returns its path.
	// size and hash, when non-zero/non-empty, are used to verify the
	// download before it is handed back to the caller.
	Get(ctx context.Context, name string, hash string, size int64) (tmpPath string, err error)

	// Put uploads the contents of r as name.
	Put(ctx context.Context, name string, r io.Reader) error

	// Delete removes name. preserve, when true, asks the backend to
	// keep a soft-deleted copy if it supports one (used by backends
	// with native versioning/trash semantics); size is advisory, for
	// backends that bill or log by size.
	Delete(ctx context.Context, name string, size int64, preserve bool) error

	// WaitForEmpty blocks until every Put/Delete issued so far has been
	// acknowledged by the remote. Called at cancellation boundaries so
	// no upload is abandoned mid-flight.
	WaitForEmpty(ctx context.Context) error
}

// OverlappedGetter is an optional capability: a backend that can
// download several files concurrently and yield them as they complete,
// rather than one at a time. Callers fall back to sequential Get when
// a backend doesn't implement it.
type OverlappedGetter interface {
	// GetFilesOverlapped starts concurrent downloads for every name in
	// list and returns a channel of completed downloads, closed once
	// all have been delivered or ctx is cancelled.
	GetFilesOverlapped(ctx context.Context, list []FileInfo) <-chan OverlappedResult
}

// OverlappedResult is one completed download from GetFilesOverlapped.
type OverlappedResult struct {
	Name    string
	TmpPath string
	Hash    string
	Size    int64
	Err     error
}
