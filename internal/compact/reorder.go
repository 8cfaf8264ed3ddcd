package compact

import (
	"context"
	"fmt"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

// DeleteKind distinguishes the two volume kinds reorder_deletable
// interleaves.
type DeleteKind string

const (
	DeleteKindBlock DeleteKind = "block"
	DeleteKindIndex DeleteKind = "index"
)

// DeleteItem is one entry of the order reorder_deletable computes: a
// block volume, or an index volume that became safe to delete once
// every block volume it references has been ordered ahead of it.
type DeleteItem struct {
	Kind     DeleteKind
	VolumeID int64
}

// ReorderDeletable takes a set of block volumes already decided safe to
// delete and returns the full delete order, interleaving index volumes
// as they become dead (spec §4.7): an index volume is only safe once
// every block volume it links to has itself been ordered for deletion,
// so deleting strictly in this order never leaves an index volume
// pointing at a block volume that no longer exists.
func ReorderDeletable(ctx context.Context, s storage.Storage, blockVolumes []int64) ([]DeleteItem, error) {
	links, err := s.AllIndexBlockLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("reorder deletable: %w", err)
	}
	return reorderFromLinks(links, blockVolumes), nil
}

// reorderFromLinks is the pure core of ReorderDeletable, split out so
// it can be tested without a storage.Storage fixture.
func reorderFromLinks(links []model.IndexBlockLink, blockVolumes []int64) []DeleteItem {
	indexToBlocks, blockToIndexes := buildLinkMaps(links)

	// remaining[indexID] counts how many of indexID's linked block
	// volumes have not yet been ordered for deletion. A linked block
	// volume outside blockVolumes is never ordered, so its index volume
	// is never yielded.
	remaining := make(map[int64]int, len(indexToBlocks))
	for indexID, blocks := range indexToBlocks {
		remaining[indexID] = len(blocks)
	}

	out := make([]DeleteItem, 0, len(blockVolumes))
	indexDone := make(map[int64]bool)

	for _, b := range blockVolumes {
		out = append(out, DeleteItem{Kind: DeleteKindBlock, VolumeID: b})
		for _, indexID := range blockToIndexes[b] {
			if indexDone[indexID] {
				continue
			}
			remaining[indexID]--
			if remaining[indexID] <= 0 {
				indexDone[indexID] = true
				out = append(out, DeleteItem{Kind: DeleteKindIndex, VolumeID: indexID})
			}
		}
	}

	return out
}

func buildLinkMaps(links []model.IndexBlockLink) (indexToBlocks, blockToIndexes map[int64][]int64) {
	indexToBlocks = make(map[int64][]int64)
	blockToIndexes = make(map[int64][]int64)
	for _, l := range links {
		indexToBlocks[l.IndexVolumeID] = append(indexToBlocks[l.IndexVolumeID], l.BlockVolumeID)
		blockToIndexes[l.BlockVolumeID] = append(blockToIndexes[l.BlockVolumeID], l.IndexVolumeID)
	}
	return indexToBlocks, blockToIndexes
}
