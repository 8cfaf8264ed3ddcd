package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/volume"
)

// MetadataPreProcessor implements spec §4.11: for every scanned entry,
// decide inline whether it needs nothing more than a metadata record
// (symlinks, directories) or must be forwarded downstream for content
// splitting (regular files).
//
// Not safe for concurrent use by more than one goroutine: the
// (prefix, prefix id) cache is a per-thread optimisation, not a shared
// cache, matching how the pipeline runs one pre-processor per worker.
type MetadataPreProcessor struct {
	Storage  storage.Storage
	Splitter *StreamBlockSplitter
	Options  Options

	// OnNewBlocklist, if set, is called for every blocklist newly
	// registered while storing a symlink's or folder's metadata, so
	// the caller can declare it in this run's index volume.
	OnNewBlocklist func(volume.IndexedBlocklist)

	cachedPrefix   string
	cachedPrefixID int64
	cacheValid     bool
}

// Process handles one scanned entry against filesetID. It returns
// (nil, nil, nil) once an ignored symlink has been skipped entirely,
// (nil, entry, nil) once a symlink or directory has been fully
// recorded and linked into the fileset, or a non-nil PreProcessedFile
// for a regular file the caller must still split and hash.
func (p *MetadataPreProcessor) Process(ctx context.Context, entry ScanEntry, filesetID int64) (*PreProcessedFile, *volume.FileEntry, error) {
	prefix, name := splitEntryPath(entry.Path)

	switch entry.Type {
	case model.EntrySymlink:
		if p.Options.SymlinkPolicy == SymlinkIgnore {
			return nil, nil, nil
		}
		fe, err := p.storeSymlink(ctx, prefix, name, entry, filesetID)
		return nil, fe, err

	case model.EntryFolder:
		fe, err := p.storeFolder(ctx, prefix, name, entry, filesetID)
		return nil, fe, err

	default:
		pre, err := p.enrichFile(ctx, prefix, name, entry)
		return pre, nil, err
	}
}

// resolvePrefix interns prefix, consulting (and updating) the
// per-thread cache first so consecutive entries from the same
// directory cost no database round trip beyond the first.
func (p *MetadataPreProcessor) resolvePrefix(ctx context.Context, tx storage.Transaction, prefix string) (int64, error) {
	if p.cacheValid && p.cachedPrefix == prefix {
		return p.cachedPrefixID, nil
	}
	id, err := tx.InternPathPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("intern path prefix: %w", err)
	}
	p.cachedPrefix, p.cachedPrefixID, p.cacheValid = prefix, id, true
	return id, nil
}

func (p *MetadataPreProcessor) storeSymlink(ctx context.Context, prefix, name string, entry ScanEntry, filesetID int64) (*volume.FileEntry, error) {
	var fe *volume.FileEntry
	err := p.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		prefixID, err := p.resolvePrefix(ctx, tx, prefix)
		if err != nil {
			return err
		}
		metaID, metaHash, metaSize, newBlocklist, err := p.storeMetadata(ctx, tx, map[string]string{CoreSymlinkTarget: entry.SymlinkTarget})
		if err != nil {
			return err
		}
		fileID, err := tx.UpsertFileLookup(ctx, &model.FileLookup{
			PathPrefixID: prefixID, Name: name,
			BlocksetID: model.SentinelBlocksetID, MetadataID: metaID,
		})
		if err != nil {
			return fmt.Errorf("store symlink: %w", err)
		}
		if err := tx.AddFilesetEntry(ctx, &model.FilesetEntry{
			FilesetID: filesetID, FileID: fileID, LastModified: entry.ModTime,
		}); err != nil {
			return fmt.Errorf("link symlink into fileset: %w", err)
		}
		fe = &volume.FileEntry{
			Type: model.EntrySymlink, Path: entry.Path, Time: entry.ModTime,
			MetaHash: metaHash, MetaSize: metaSize,
		}
		if newBlocklist != nil {
			fe.MetaBlocklistHashes = []string{newBlocklist.Hash}
			p.recordBlocklist(*newBlocklist)
		}
		return nil
	})
	return fe, err
}

func (p *MetadataPreProcessor) storeFolder(ctx context.Context, prefix, name string, entry ScanEntry, filesetID int64) (*volume.FileEntry, error) {
	var fe *volume.FileEntry
	err := p.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		prefixID, err := p.resolvePrefix(ctx, tx, prefix)
		if err != nil {
			return err
		}
		attrs := map[string]string{}
		if !p.Options.SkipMetadata {
			attrs["CoreLastWritetime"] = entry.ModTime.UTC().String()
		}
		metaID, metaHash, metaSize, newBlocklist, err := p.storeMetadata(ctx, tx, attrs)
		if err != nil {
			return err
		}
		fileID, err := tx.UpsertFileLookup(ctx, &model.FileLookup{
			PathPrefixID: prefixID, Name: name,
			BlocksetID: model.SentinelBlocksetID, MetadataID: metaID,
		})
		if err != nil {
			return fmt.Errorf("store folder: %w", err)
		}
		if err := tx.AddFilesetEntry(ctx, &model.FilesetEntry{
			FilesetID: filesetID, FileID: fileID, LastModified: entry.ModTime,
		}); err != nil {
			return fmt.Errorf("link folder into fileset: %w", err)
		}
		fe = &volume.FileEntry{
			Type: model.EntryFolder, Path: entry.Path, Time: entry.ModTime,
			MetaHash: metaHash, MetaSize: metaSize,
		}
		if newBlocklist != nil {
			fe.MetaBlocklistHashes = []string{newBlocklist.Hash}
			p.recordBlocklist(*newBlocklist)
		}
		return nil
	})
	return fe, err
}

// recordBlocklist hands a newly-registered blocklist to the
// pre-processor's sink, if one is wired up. Index volume assembly is
// the pipeline's job, not the pre-processor's; this is just the relay.
func (p *MetadataPreProcessor) recordBlocklist(b volume.IndexedBlocklist) {
	if p.OnNewBlocklist != nil {
		p.OnNewBlocklist(b)
	}
}

// StoreMetadata records attrs as a Metadataset in its own transaction,
// for callers outside the pre-processor's own symlink/folder handling
// -- namely the regular-file path, which pre-processes a file's
// (old_id, old_modified, ...) history separately from storing its
// current metadata. Also returns the metadata's own hash/size, both
// pure functions of attrs, so a caller building a FileEntry never
// needs a second query for them, and the blocklist newly registered
// for it, if any (nil when this metadata content was already known).
func (p *MetadataPreProcessor) StoreMetadata(ctx context.Context, attrs map[string]string) (id int64, hash string, size int64, newBlocklist *volume.IndexedBlocklist, err error) {
	err = p.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var ierr error
		id, hash, size, newBlocklist, ierr = p.storeMetadata(ctx, tx, attrs)
		return ierr
	})
	return id, hash, size, newBlocklist, err
}

// storeMetadata writes attrs as a one-block Metadataset, reusing an
// existing Blockset with the same encoded content when one already
// exists (metadata is frequently identical across many files, e.g.
// shared permission bits).
func (p *MetadataPreProcessor) storeMetadata(ctx context.Context, tx storage.Transaction, attrs map[string]string) (id int64, hash string, size int64, newBlocklist *volume.IndexedBlocklist, err error) {
	encoded, err := encodeMetadata(attrs)
	if err != nil {
		return 0, "", 0, nil, err
	}
	hash = hashMetadata(encoded)
	size = int64(len(encoded))

	bs, err := tx.FindBlocksetByHash(ctx, hash, size)
	var blocksetID int64
	switch {
	case err == nil:
		blocksetID = bs.ID
	case err == storage.ErrNotFound:
		id, err := tx.InsertBlockset(ctx, &model.Blockset{FullHash: hash, Length: size})
		if err != nil {
			return 0, "", 0, nil, fmt.Errorf("insert metadata blockset: %w", err)
		}
		blocksetID = id

		if size > 0 {
			blockID, err := p.Splitter.Writer.PutBlock(ctx, hash, size, encoded)
			if err != nil {
				return 0, "", 0, nil, fmt.Errorf("store metadata block: %w", err)
			}
			if err := tx.AddBlocksetEntry(ctx, &model.BlocksetEntry{BlocksetID: blocksetID, Index: 0, BlockID: blockID}); err != nil {
				return 0, "", 0, nil, fmt.Errorf("add metadata blockset entry: %w", err)
			}
			if err := tx.AddBlocklistHash(ctx, &model.BlocklistHash{BlocksetID: blocksetID, Index: 0, Hash: hash}); err != nil {
				return 0, "", 0, nil, fmt.Errorf("link metadata blockset: %w", err)
			}
			newBlocklist = &volume.IndexedBlocklist{Hash: hash, Blocklist: []string{hash}}
		}
	default:
		return 0, "", 0, nil, fmt.Errorf("find metadata blockset: %w", err)
	}

	metaID, err := tx.InsertMetadataset(ctx, &model.Metadataset{BlocksetID: blocksetID})
	if err != nil {
		return 0, "", 0, nil, err
	}
	return metaID, hash, size, newBlocklist, nil
}

// enrichFile resolves everything the spec's single-lookup enrichment
// requires. DisableFiletimeCheck forces a rehash every run and never
// consults history at all. CheckFiletimeOnly decides cheaply first,
// via the lighter LookupFileLastModified query: only once that
// confirms the timestamp is unchanged does it pay for the full
// LookupFileHistory, since even a reused file must still be able to
// re-emit a complete FileEntry for this backup's file-list volume.
func (p *MetadataPreProcessor) enrichFile(ctx context.Context, prefix, name string, entry ScanEntry) (*PreProcessedFile, error) {
	out := &PreProcessedFile{Entry: entry}
	err := p.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		prefixID, err := p.resolvePrefix(ctx, tx, prefix)
		if err != nil {
			return err
		}
		out.PathPrefixID = prefixID

		if p.Options.DisableFiletimeCheck {
			return nil
		}

		if p.Options.CheckFiletimeOnly {
			lastModified, err := tx.LookupFileLastModified(ctx, prefixID, name)
			if err == storage.ErrNotFound {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lookup last modified: %w", err)
			}
			if !entry.ModTime.Equal(lastModified) {
				return nil
			}
		}

		hist, err := tx.LookupFileHistory(ctx, prefixID, name)
		if err == storage.ErrNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup file history: %w", err)
		}
		out.HasHistory = true
		out.OldFileID = hist.FileID
		out.OldModified = hist.OldModified
		out.ContentBlocksetID = hist.ContentBlocksetID
		out.OldHash = hist.OldHash
		out.LastFileSize = hist.LastFileSize
		out.OldMetaHash = hist.OldMetaHash
		out.OldMetaSize = hist.OldMetaSize
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// splitEntryPath divides a full path into (prefix, name), matching how
// internal/recreate and internal/storage intern path_prefix rows.
func splitEntryPath(p string) (prefix, name string) {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	prefix, name = path.Split(cleaned)
	return strings.TrimSuffix(prefix, "/"), name
}
