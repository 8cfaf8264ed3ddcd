// Package recreate rebuilds the local index database from nothing but
// a remote location: the five-phase reconciliation engine of spec
// §4.9.
package recreate

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/blockvault/blockvault/internal/apperr"
	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
)

// Options parameterises one recreate run.
type Options struct {
	Passphrase          string
	BlockSizeBytes      int64
	CompressionModules  []string
	EncryptionModules   []string // must include "" for the unencrypted case
	VerifyFilelists     bool
}

// Engine drives the recreate phases against a remote backend and a
// freshly-opened (or truncated) index database.
type Engine struct {
	Storage  storage.Storage
	Backend  remote.Backend
	Options  Options
	Reporter progress.Reporter
}

// Result summarises one completed recreate run.
type Result struct {
	FilesetsRecovered       int
	BlockVolumesRecovered   int
	IndexVolumesRecovered   int
	MalformedBlocklistCount int
	InconsistentBlocksets   []int64

	// Warnings accumulates non-fatal conditions worth surfacing to the
	// operator, such as phase 4 needing its full remote sweep.
	Warnings []string
}

// Run executes all five phases in order, stopping at the first error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.Reporter == nil {
		e.Reporter = progress.NopReporter{}
	}

	listing, err := e.phase1ListRemote(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	if err := e.phase2FileLists(ctx, listing, res); err != nil {
		return nil, err
	}

	pending, malformed, hashToBlock, err := e.phase3IndexVolumes(ctx, listing, res)
	if err != nil {
		return nil, err
	}
	res.MalformedBlocklistCount = malformed

	if err := e.phase4RecoverBlockVolumes(ctx, listing, pending, hashToBlock, res); err != nil {
		return nil, err
	}

	if err := e.phase5Cleanup(ctx, res); err != nil {
		return nil, err
	}

	return res, nil
}

// remoteListing is the parsed form of everything phase 1 found on the
// remote, grouped by volume type. fileLists is ordered newest-first;
// index and blocks keep the order the backend listed them in.
type remoteListing struct {
	fileLists []parsedVolume
	index     []parsedVolume
	blocks    []parsedVolume
	byName    map[string]parsedVolume
}

type parsedVolume struct {
	info remote.FileInfo
	d    remote.Descriptor
}

// phase1ListRemote implements spec §4.9 P1: list and parse every
// remote filename, failing fast if the remote is empty or carries no
// parseable volumes, and if any volume is encrypted but no passphrase
// is configured.
func (e *Engine) phase1ListRemote(ctx context.Context) (*remoteListing, error) {
	files, err := e.Backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("recreate: list remote: %w", err)
	}
	if len(files) == 0 {
		return nil, apperr.User("recreate: remote location is empty")
	}

	listing := &remoteListing{byName: make(map[string]parsedVolume, len(files))}
	for _, f := range files {
		d, err := remote.Parse(f.Name)
		if err != nil {
			continue // not every object on a remote need be a volume
		}
		pv := parsedVolume{info: f, d: d}
		listing.byName[f.Name] = pv
		switch d.Type {
		case model.VolumeTypeFiles:
			listing.fileLists = append(listing.fileLists, pv)
		case model.VolumeTypeIndex:
			listing.index = append(listing.index, pv)
		case model.VolumeTypeBlocks:
			listing.blocks = append(listing.blocks, pv)
		}
	}

	if len(listing.byName) == 0 {
		return nil, apperr.User("recreate: remote has files but none match the expected volume naming scheme (wrong prefix?)")
	}

	for name, pv := range listing.byName {
		if pv.d.Encryption != "" && e.Options.Passphrase == "" {
			return nil, apperr.User("recreate: volume %s is encrypted and no passphrase is configured", name)
		}
	}

	sort.Slice(listing.fileLists, func(i, j int) bool {
		return listing.fileLists[i].d.Time.After(listing.fileLists[j].d.Time)
	})

	return listing, nil
}

// splitPath divides a full path into (prefix, name), matching how
// internal/storage interns path_prefix rows.
func splitPath(p string) (prefix, name string) {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	prefix, name = path.Split(cleaned)
	return strings.TrimSuffix(prefix, "/"), name
}

// resolveRemoteName confirms that a filename an index volume declares
// still exists on the remote, trying every loaded (compression,
// encryption) combination per spec §4.10's probe before giving up --
// the index volume may have been written by a process running a
// different codec configuration than this recreate run's.
func (e *Engine) resolveRemoteName(declared string, listing *remoteListing) (string, bool) {
	lookup := func(candidate string) (int64, bool) {
		_, ok := listing.byName[candidate]
		return 0, ok
	}
	if _, ok := listing.byName[declared]; ok {
		return declared, true
	}
	_, generated := remote.Probe(declared, e.Options.CompressionModules, e.Options.EncryptionModules, lookup)
	if _, ok := listing.byName[generated]; ok {
		return generated, true
	}
	return "", false
}
