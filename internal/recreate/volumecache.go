package recreate

import (
	"context"
	"fmt"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

// ensureVolume finds or creates the remote_volume row for name, using
// cache to avoid a database round trip for volumes this run has
// already registered (the common case: an index volume referencing a
// block volume also referenced by an earlier index volume).
func ensureVolume(ctx context.Context, tx storage.Transaction, cache map[string]int64, name string, typ model.VolumeType, size int64) (int64, error) {
	if id, ok := cache[name]; ok {
		return id, nil
	}
	id, err := tx.InsertRemoteVolume(ctx, &model.RemoteVolume{
		Name:  name,
		Type:  typ,
		State: model.VolumeStateVerified,
		Size:  size,
	})
	if err != nil {
		return 0, fmt.Errorf("recreate: register volume %s: %w", name, err)
	}
	cache[name] = id
	return id, nil
}

func blockKey(hash string, size int64) string {
	return fmt.Sprintf("%s/%d", hash, size)
}
