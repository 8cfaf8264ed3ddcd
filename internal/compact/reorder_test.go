package compact

import (
	"testing"

	"github.com/blockvault/blockvault/internal/model"
)

func TestReorderFromLinksIndexBecomesDeadOnce(t *testing.T) {
	// Index volume 100 links to block volumes 1 and 2. It should only
	// appear once both have been ordered for deletion.
	links := []model.IndexBlockLink{
		{IndexVolumeID: 100, BlockVolumeID: 1},
		{IndexVolumeID: 100, BlockVolumeID: 2},
	}

	order := reorderFromLinks(links, []int64{1, 2})

	if len(order) != 3 {
		t.Fatalf("expected 3 entries (2 blocks + 1 index), got %d: %+v", len(order), order)
	}
	if order[0] != (DeleteItem{Kind: DeleteKindBlock, VolumeID: 1}) {
		t.Errorf("entry 0 = %+v, want block 1", order[0])
	}
	if order[1] != (DeleteItem{Kind: DeleteKindBlock, VolumeID: 2}) {
		t.Errorf("entry 1 = %+v, want block 2", order[1])
	}
	if order[2] != (DeleteItem{Kind: DeleteKindIndex, VolumeID: 100}) {
		t.Errorf("entry 2 = %+v, want index 100", order[2])
	}
}

func TestReorderFromLinksIndexSurvivesIfOneBlockRemains(t *testing.T) {
	links := []model.IndexBlockLink{
		{IndexVolumeID: 100, BlockVolumeID: 1},
		{IndexVolumeID: 100, BlockVolumeID: 2},
	}

	// Only volume 1 is being deleted; volume 2 still lives, so index
	// 100 must not be ordered for deletion.
	order := reorderFromLinks(links, []int64{1})

	if len(order) != 1 {
		t.Fatalf("expected only the block entry, got %+v", order)
	}
	if order[0].Kind != DeleteKindBlock {
		t.Errorf("expected a block entry, got %+v", order[0])
	}
}

func TestReorderFromLinksNoLinks(t *testing.T) {
	order := reorderFromLinks(nil, []int64{5, 6})
	if len(order) != 2 {
		t.Fatalf("expected 2 block-only entries, got %+v", order)
	}
	for i, id := range []int64{5, 6} {
		if order[i] != (DeleteItem{Kind: DeleteKindBlock, VolumeID: id}) {
			t.Errorf("entry %d = %+v, want block %d", i, order[i], id)
		}
	}
}
