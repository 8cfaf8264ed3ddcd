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

// pendingBlocklist is a blocklist hash this run could not fully
// resolve to block rows on its first pass, carried into phase 4 for
// another attempt.
type pendingBlocklist = volume.IndexedBlocklist

// phase3IndexVolumes implements spec §4.9 P3: for every Index volume,
// register the block volumes and blocks it declares, link them, and
// reconcile each declared blocklist back into BlocksetEntry rows via
// FindBlocklistHashOccurrences.
//
// Blocklist reconciliation here is simplified relative to the original
// engine: a blocklist hash's constituent hashes are assumed to map
// onto a contiguous, uniformly-sized run of BlocksetEntry indices
// (occurrence.Index * len(blocklist) + i), rather than modelling
// per-blockset hashes-per-chunk bookkeeping explicitly. This holds for
// every blockset produced by this engine's own splitter and is the
// same assumption phase 2's single-block shortcut relies on.
func (e *Engine) phase3IndexVolumes(ctx context.Context, listing *remoteListing, res *Result) ([]pendingBlocklist, int, map[string]int64, error) {
	volumeIDs := make(map[string]int64, len(listing.index)+len(listing.blocks))
	hashToBlock := make(map[string]int64)
	var blocklists []pendingBlocklist

	for i, iv := range listing.index {
		if err := progress.Checkpoint(ctx); err != nil {
			return nil, 0, nil, err
		}
		e.Reporter.Report("recreate: index volumes", int64(i), int64(len(listing.index)))

		tmpPath, err := e.Backend.Get(ctx, iv.info.Name, "", iv.info.Size)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("recreate: download index volume %s: %w", iv.info.Name, err)
		}
		reader, err := readIndexVolume(tmpPath)
		os.Remove(tmpPath)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("recreate: read index volume %s: %w", iv.info.Name, err)
		}

		err = e.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
			indexVolID, err := ensureVolume(ctx, tx, volumeIDs, iv.info.Name, model.VolumeTypeIndex, iv.info.Size)
			if err != nil {
				return err
			}

			for _, v := range reader.Volumes() {
				actualName, ok := e.resolveRemoteName(v.Filename, listing)
				if !ok {
					// The index volume declares a block volume that
					// isn't actually on the remote under any codec
					// variant -- it was deleted after this index
					// volume was written. Skip it; any blockset entry
					// that depended on it stays unresolved and is
					// reported, not fatal (spec §4.9 P4).
					continue
				}
				blockVolID, err := ensureVolume(ctx, tx, volumeIDs, actualName, model.VolumeTypeBlocks, v.Length)
				if err != nil {
					return err
				}
				if err := tx.LinkIndexVolume(ctx, &model.IndexBlockLink{
					IndexVolumeID: indexVolID,
					BlockVolumeID: blockVolID,
				}); err != nil {
					return fmt.Errorf("link index volume: %w", err)
				}

				for _, b := range v.Blocks {
					if _, _, err := registerBlock(ctx, tx, hashToBlock, b.Hash, b.Size, blockVolID); err != nil {
						return err
					}
				}
			}

			res.IndexVolumesRecovered++
			return nil
		})
		if err != nil {
			return nil, 0, nil, err
		}

		blocklists = append(blocklists, reader.BlockLists()...)
	}

	unresolved, malformed, err := e.reconcileBlocklists(ctx, blocklists, hashToBlock)
	if err != nil {
		return nil, 0, nil, err
	}
	return unresolved, malformed, hashToBlock, nil
}

func readIndexVolume(path string) (*volume.IndexVolumeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return volume.ReadIndexVolume(f)
}

// registerBlock finds or inserts the Block row for (hash, size) in
// blockVolID, recording a DuplicateBlock instead when the block's
// primary copy already lives elsewhere.
func registerBlock(ctx context.Context, tx storage.Transaction, hashToBlock map[string]int64, hash string, size, blockVolID int64) (int64, bool, error) {
	key := blockKey(hash, size)
	if id, ok := hashToBlock[key]; ok {
		if err := tx.AddDuplicateBlock(ctx, id, blockVolID); err != nil {
			return 0, false, fmt.Errorf("add duplicate block: %w", err)
		}
		return id, false, nil
	}

	existing, err := tx.FindBlock(ctx, hash, size)
	if err == nil {
		hashToBlock[key] = existing.ID
		if err := tx.AddDuplicateBlock(ctx, existing.ID, blockVolID); err != nil {
			return 0, false, fmt.Errorf("add duplicate block: %w", err)
		}
		return existing.ID, false, nil
	}
	if err != storage.ErrNotFound {
		return 0, false, fmt.Errorf("find block: %w", err)
	}

	id, err := tx.InsertBlock(ctx, &model.Block{Hash: hash, Size: size, VolumeID: blockVolID})
	if err != nil {
		return 0, false, fmt.Errorf("insert block: %w", err)
	}
	hashToBlock[key] = id
	return id, true, nil
}

// reconcileBlocklists turns every declared blocklist into
// BlocksetEntry rows wherever every one of its constituent hashes is
// already a known block. Blocklists whose registering blockset is
// unknown (no FindBlocklistHashOccurrences match at all) count as
// malformed; blocklists that matched a blockset but couldn't resolve
// every hash yet are returned as unresolved for phase 4 to retry.
func (e *Engine) reconcileBlocklists(ctx context.Context, blocklists []pendingBlocklist, hashByHashOnly map[string]int64) ([]pendingBlocklist, int, error) {
	hashOnly := make(map[string]int64, len(hashByHashOnly))
	for key, id := range hashByHashOnly {
		if hash, ok := splitBlockKey(key); ok {
			hashOnly[hash] = id
		}
	}

	var unresolved []pendingBlocklist
	malformed := 0

	err := e.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, bl := range blocklists {
			occurrences, err := tx.FindBlocklistHashOccurrences(ctx, bl.Hash)
			if err != nil {
				return fmt.Errorf("find blocklist hash occurrences: %w", err)
			}
			if len(occurrences) == 0 {
				malformed++
				continue
			}

			allResolved := true
			for _, occ := range occurrences {
				base := occ.Index * len(bl.Blocklist)
				for i, h := range bl.Blocklist {
					blockID, ok := hashOnly[h]
					if !ok {
						allResolved = false
						continue
					}
					if err := tx.AddBlocksetEntry(ctx, &model.BlocksetEntry{
						BlocksetID: occ.BlocksetID,
						Index:      base + i,
						BlockID:    blockID,
					}); err != nil {
						return fmt.Errorf("add blockset entry: %w", err)
					}
				}
			}
			if !allResolved {
				unresolved = append(unresolved, bl)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return unresolved, malformed, nil
}

func splitBlockKey(key string) (hash string, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i], true
		}
	}
	return "", false
}
