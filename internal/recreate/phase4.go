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

// maxReconcilePasses bounds the retry loop phase 4 runs over blocklists
// phase 3 couldn't fully resolve: an initial pass plus two widening
// retries.
const maxReconcilePasses = 3

// phase4RecoverBlockVolumes downloads and reads actual block volumes
// to resolve blocklists phase 3 couldn't. An index volume only
// redundantly declares the blocks it put into some block volume, so a
// blocklist whose covering index volume was itself lost has no
// (hash,size) entries registered anywhere yet. The raw block volume is
// the one remaining source for that data, so this phase opens it
// directly with volume.OpenBlockVolumeReader and registers whatever
// registerBlock missed.
//
// Three passes widen which block volumes get downloaded: pass 0 reads
// only volumes phase 3 never registered at all (orphans no surviving
// index volume declared) -- the required set, since nothing else
// carries their blocks. Pass 1 re-reads volumes phase 3 did register,
// a candidate set in case the declaring index volume under-reported
// its contents. Pass 2 is an unconditional sweep of every remaining
// block volume on the remote, the last resort once the narrower passes
// still leave blocklists unresolved.
func (e *Engine) phase4RecoverBlockVolumes(ctx context.Context, listing *remoteListing, pending []pendingBlocklist, hashToBlock map[string]int64, res *Result) error {
	read := make(map[string]bool, len(listing.blocks))

	for pass := 0; pass < maxReconcilePasses && len(pending) > 0; pass++ {
		if err := progress.Checkpoint(ctx); err != nil {
			return err
		}

		candidates, err := e.blockVolumesForPass(ctx, pass, listing, read)
		if err != nil {
			return err
		}

		registeredBefore := len(hashToBlock)
		for i, bv := range candidates {
			if err := progress.Checkpoint(ctx); err != nil {
				return err
			}
			e.Reporter.Report(fmt.Sprintf("recreate: block volume recovery (pass %d)", pass), int64(i), int64(len(candidates)))

			if err := e.readBlockVolume(ctx, bv, hashToBlock); err != nil {
				return err
			}
			read[bv.info.Name] = true
		}

		unresolved, malformed, err := e.reconcileBlocklists(ctx, pending, hashToBlock)
		if err != nil {
			return err
		}
		res.MalformedBlocklistCount += malformed

		if pass == 2 && len(hashToBlock) > registeredBefore {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"block volume recovery needed a full remote sweep (pass 2) to register %d additional block(s); check for missing or corrupt index volumes",
				len(hashToBlock)-registeredBefore))
		}

		pending = unresolved
	}

	res.MalformedBlocklistCount += len(pending)
	res.BlockVolumesRecovered = len(listing.blocks)
	return nil
}

// blockVolumesForPass selects which not-yet-read block volumes pass
// should download: orphans phase 3 never registered (0), already
// registered volumes phase 3 may have under-reported (1), or every
// remaining block volume regardless (2).
func (e *Engine) blockVolumesForPass(ctx context.Context, pass int, listing *remoteListing, read map[string]bool) ([]parsedVolume, error) {
	var out []parsedVolume
	for _, bv := range listing.blocks {
		if read[bv.info.Name] {
			continue
		}
		registered, err := e.volumeRegistered(ctx, bv.info.Name)
		if err != nil {
			return nil, err
		}
		switch pass {
		case 0:
			if !registered {
				out = append(out, bv)
			}
		case 1:
			if registered {
				out = append(out, bv)
			}
		default:
			out = append(out, bv)
		}
	}
	return out, nil
}

func (e *Engine) volumeRegistered(ctx context.Context, name string) (bool, error) {
	_, err := e.Storage.GetRemoteVolumeByName(ctx, name)
	if err == nil {
		return true, nil
	}
	if err == storage.ErrNotFound {
		return false, nil
	}
	return false, fmt.Errorf("recreate: lookup volume %s: %w", name, err)
}

// readBlockVolume downloads bv, opens it with
// volume.OpenBlockVolumeReader, and registers every block its manifest
// declares -- the same registerBlock phase 3 uses for index-declared
// blocks, so a block already known from elsewhere still just becomes a
// DuplicateBlock row. Runs in its own transaction so a later volume's
// failure doesn't lose an earlier one's progress within the pass.
func (e *Engine) readBlockVolume(ctx context.Context, bv parsedVolume, hashToBlock map[string]int64) error {
	tmpPath, err := e.Backend.Get(ctx, bv.info.Name, "", bv.info.Size)
	if err != nil {
		return fmt.Errorf("recreate: download block volume %s: %w", bv.info.Name, err)
	}
	defer os.Remove(tmpPath)

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("recreate: open block volume %s: %w", bv.info.Name, err)
	}
	defer f.Close()

	reader, err := volume.OpenBlockVolumeReader(f, bv.info.Size)
	if err != nil {
		return fmt.Errorf("recreate: read block volume %s: %w", bv.info.Name, err)
	}

	return e.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		blockVolID, err := ensureBlockVolume(ctx, tx, bv.info.Name, bv.info.Size)
		if err != nil {
			return err
		}
		for _, b := range reader.Blocks() {
			if _, _, err := registerBlock(ctx, tx, hashToBlock, b.Hash, b.Size, blockVolID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ensureBlockVolume resolves name to its RemoteVolume row, inserting
// one if phase 3 never registered it.
func ensureBlockVolume(ctx context.Context, tx storage.Transaction, name string, size int64) (int64, error) {
	existing, err := tx.GetRemoteVolumeByName(ctx, name)
	if err == nil {
		return existing.ID, nil
	}
	if err != storage.ErrNotFound {
		return 0, fmt.Errorf("recreate: lookup volume %s: %w", name, err)
	}

	id, err := tx.InsertRemoteVolume(ctx, &model.RemoteVolume{
		Name: name, Type: model.VolumeTypeBlocks, State: model.VolumeStateVerified, Size: size,
	})
	if err != nil {
		return 0, fmt.Errorf("recreate: register block volume %s: %w", name, err)
	}
	return id, nil
}
