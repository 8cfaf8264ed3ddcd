package recreate

import (
	"context"
	"fmt"
	"os"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/volume"
)

// phase2FileLists implements spec §4.9 P2: rebuild every Fileset,
// FileLookup, Blockset, and Metadataset row from the Files volumes,
// newest first. Block content itself isn't resolved here -- that's
// phase 3/4's job -- so a blockset's entries are empty until its
// blocklist hashes are reconciled against a block volume's index
// declaration.
func (e *Engine) phase2FileLists(ctx context.Context, listing *remoteListing, res *Result) error {
	volumeIDs := make(map[string]int64, len(listing.fileLists))

	for i, fl := range listing.fileLists {
		if err := progress.Checkpoint(ctx); err != nil {
			return err
		}
		e.Reporter.Report("recreate: file lists", int64(i), int64(len(listing.fileLists)))

		tmpPath, err := e.Backend.Get(ctx, fl.info.Name, "", fl.info.Size)
		if err != nil {
			return fmt.Errorf("recreate: download file-list volume %s: %w", fl.info.Name, err)
		}
		entries, isFull, err := readFileListVolume(tmpPath)
		os.Remove(tmpPath)
		if err != nil {
			return fmt.Errorf("recreate: read file-list volume %s: %w", fl.info.Name, err)
		}

		err = e.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
			volID, err := ensureVolume(ctx, tx, volumeIDs, fl.info.Name, model.VolumeTypeFiles, fl.info.Size)
			if err != nil {
				return err
			}

			fsID, err := tx.InsertFileset(ctx, &model.Fileset{
				Timestamp:    fl.d.Time,
				VolumeID:     volID,
				IsFullBackup: isFull,
			})
			if err != nil {
				return fmt.Errorf("insert fileset: %w", err)
			}

			for _, entry := range entries {
				fileID, err := e.recordFileEntry(ctx, tx, entry)
				if err != nil {
					return err
				}
				if err := tx.AddFilesetEntry(ctx, &model.FilesetEntry{
					FilesetID:    fsID,
					FileID:       fileID,
					LastModified: entry.Time,
				}); err != nil {
					return fmt.Errorf("add fileset entry: %w", err)
				}
			}

			res.FilesetsRecovered++
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func readFileListVolume(path string) (entries []volume.FileEntry, isFullBackup bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	reader, err := volume.ReadFileListVolume(f)
	if err != nil {
		return nil, false, err
	}
	return reader.Entries(), reader.IsFullBackup(), nil
}

// recordFileEntry rebuilds the FileLookup row (and, for real file
// content, its Blockset/Metadataset) for one path, and returns its
// FileLookup ID.
func (e *Engine) recordFileEntry(ctx context.Context, tx storage.Transaction, entry volume.FileEntry) (int64, error) {
	prefix, name := splitPath(entry.Path)
	prefixID, err := tx.InternPathPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}

	blocksetID := int64(model.SentinelBlocksetID)
	if entry.Type == model.EntryFile {
		blocksetID, err = e.findOrCreateContentBlockset(ctx, tx, entry)
		if err != nil {
			return 0, err
		}
	}

	metaBlocksetID, err := findOrCreateBlockset(ctx, tx, entry.MetaHash, entry.MetaSize)
	if err != nil {
		return 0, err
	}
	if err := linkBlocklistHashes(ctx, tx, metaBlocksetID, entry.MetaBlocklistHashes, entry.MetaHash); err != nil {
		return 0, err
	}
	metadataID, err := tx.InsertMetadataset(ctx, &model.Metadataset{BlocksetID: metaBlocksetID})
	if err != nil {
		return 0, fmt.Errorf("insert metadataset: %w", err)
	}

	return tx.UpsertFileLookup(ctx, &model.FileLookup{
		PathPrefixID: prefixID,
		Name:         name,
		BlocksetID:   blocksetID,
		MetadataID:   metadataID,
	})
}

// findOrCreateContentBlockset resolves a file entry's content blockset,
// registering either its multi-block blocklist hashes or, for a
// single-block file, a one-entry blocklist keyed by the block's own
// content hash. That single-entry shortcut ("SmallBlocksetLink" in the
// original terminology) means a one-block file never needs its own
// block volume probed separately from its index volume -- the same
// FindBlocklistHashOccurrences lookup phase 3 uses for multi-block
// files resolves it too.
func (e *Engine) findOrCreateContentBlockset(ctx context.Context, tx storage.Transaction, entry volume.FileEntry) (int64, error) {
	blocksetID, err := findOrCreateBlockset(ctx, tx, entry.Hash, entry.Size)
	if err != nil {
		return 0, err
	}

	if len(entry.BlocklistHashes) > 0 {
		if err := linkBlocklistHashes(ctx, tx, blocksetID, entry.BlocklistHashes, entry.Hash); err != nil {
			return 0, err
		}
	} else if entry.BlockHash != "" {
		if err := tx.AddBlocklistHash(ctx, &model.BlocklistHash{
			BlocksetID: blocksetID,
			Index:      0,
			Hash:       entry.BlockHash,
		}); err != nil {
			return 0, fmt.Errorf("add single-block blocklist hash: %w", err)
		}
	}
	return blocksetID, nil
}

func findOrCreateBlockset(ctx context.Context, tx storage.Transaction, fullHash string, length int64) (int64, error) {
	existing, err := tx.FindBlocksetByHash(ctx, fullHash, length)
	if err == nil {
		return existing.ID, nil
	}
	if err != storage.ErrNotFound {
		return 0, fmt.Errorf("find blockset: %w", err)
	}
	return tx.InsertBlockset(ctx, &model.Blockset{FullHash: fullHash, Length: length})
}

func linkBlocklistHashes(ctx context.Context, tx storage.Transaction, blocksetID int64, hashes []string, fallback string) error {
	if len(hashes) == 0 && fallback != "" {
		hashes = []string{fallback}
	}
	for i, h := range hashes {
		if err := tx.AddBlocklistHash(ctx, &model.BlocklistHash{BlocksetID: blocksetID, Index: i, Hash: h}); err != nil {
			return fmt.Errorf("add blocklist hash: %w", err)
		}
	}
	return nil
}
