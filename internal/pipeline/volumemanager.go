package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/blockvault/blockvault/internal/codec"
	"github.com/blockvault/blockvault/internal/idgen"
	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/volume"
)

// ContentWriter durably stores one deduplicated block's payload and
// returns the Block row backing it. Implementations must be safe to
// call from the single pipeline stage that owns them; PutBlock itself
// is not required to be concurrency-safe across goroutines.
type ContentWriter interface {
	PutBlock(ctx context.Context, hash string, size int64, raw []byte) (blockID int64, err error)
}

// VolumeManager buffers newly-written blocks into a Temporary block
// volume, flushing (compress, encrypt, upload, mark Uploaded) once the
// buffer reaches Options.VolumeSizeBytes. Database operations and the
// remote upload never share a transaction: per spec §5, remote I/O is
// a suspension point and must not run while a write lock from another
// suspended task is held, so every state transition around the upload
// is its own short transaction (the same shape internal/compact's
// Apply uses for its own volume-state transitions).
type VolumeManager struct {
	Storage storage.Storage
	Backend remote.Backend
	Codec   *codec.Registry
	Options Options

	mu             sync.Mutex
	current        *pendingVolume
	indexedVolumes []volume.IndexedVolume
}

type pendingVolume struct {
	volumeID int64
	name     string
	writer   *volume.BlockVolumeWriter
	size     int64
	blocks   []volume.IndexedBlock
}

func NewVolumeManager(s storage.Storage, backend remote.Backend, reg *codec.Registry, opts Options) *VolumeManager {
	return &VolumeManager{Storage: s, Backend: backend, Codec: reg, Options: opts}
}

// PutBlock dedupes hash/size against the index before writing anything:
// a block this run has already seen (or an earlier backup left behind)
// contributes no new bytes to the volume, only a BlocksetEntry
// reference built by the caller.
func (vm *VolumeManager) PutBlock(ctx context.Context, hash string, size int64, raw []byte) (int64, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	var existingID int64
	found := false
	err := vm.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		b, err := tx.FindBlock(ctx, hash, size)
		if err == nil {
			existingID, found = b.ID, true
			return nil
		}
		if err != storage.ErrNotFound {
			return fmt.Errorf("find block: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if found {
		return existingID, nil
	}

	payload, err := vm.sealBlock(hash, raw)
	if err != nil {
		return 0, err
	}

	var blockID int64
	var shouldFlush bool
	err = vm.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if vm.current == nil {
			if err := vm.reserveVolume(ctx, tx); err != nil {
				return err
			}
		}

		vm.current.writer.WriteBlock(hash, size, payload)
		vm.current.size += int64(len(payload))
		vm.current.blocks = append(vm.current.blocks, volume.IndexedBlock{Hash: hash, Size: size})

		id, err := tx.InsertBlock(ctx, &model.Block{Hash: hash, Size: size, VolumeID: vm.current.volumeID})
		if err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
		blockID = id
		shouldFlush = vm.current.size >= vm.Options.VolumeSizeBytes
		return nil
	})
	if err != nil {
		return 0, err
	}

	if shouldFlush {
		if err := vm.flush(ctx); err != nil {
			return 0, err
		}
	}
	return blockID, nil
}

// sealBlock compresses then encrypts raw, ready to append to a block
// volume. Pure CPU work, kept outside every transaction.
func (vm *VolumeManager) sealBlock(hash string, raw []byte) ([]byte, error) {
	compressor, ok := vm.Codec.Compressor(vm.Options.CompressionModule)
	if !ok {
		return nil, fmt.Errorf("unknown compression module %q", vm.Options.CompressionModule)
	}
	encryptor, ok := vm.Codec.Encryptor(vm.Options.EncryptionModule)
	if !ok {
		return nil, fmt.Errorf("unknown encryption module %q", vm.Options.EncryptionModule)
	}

	var compressed bytes.Buffer
	if err := compressor.Compress(&compressed, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("compress block %s: %w", hash, err)
	}
	var payload bytes.Buffer
	if err := encryptor.Encrypt(&payload, bytes.NewReader(compressed.Bytes())); err != nil {
		return nil, fmt.Errorf("encrypt block %s: %w", hash, err)
	}
	return payload.Bytes(), nil
}

// reserveVolume registers a fresh Temporary remote_volume row and its
// filename before any block content is buffered against it, so
// PutBlock's InsertBlock calls always have a volume to point at.
func (vm *VolumeManager) reserveVolume(ctx context.Context, tx storage.Transaction) error {
	name := remote.Generate(remote.Descriptor{
		Type:        model.VolumeTypeBlocks,
		GUID:        idgen.VolumeGUID(),
		Compression: vm.Options.CompressionModule,
		Encryption:  vm.Options.EncryptionModule,
	})
	id, err := tx.InsertRemoteVolume(ctx, &model.RemoteVolume{
		Name: name, Type: model.VolumeTypeBlocks, State: model.VolumeStateTemporary,
		DeleteGracePeriod: vm.Options.DeleteGracePeriod,
	})
	if err != nil {
		return fmt.Errorf("reserve block volume: %w", err)
	}
	vm.current = &pendingVolume{volumeID: id, name: name, writer: volume.NewBlockVolumeWriter()}
	return nil
}

// Flush uploads whatever is currently buffered, if anything. Callers
// (the pipeline's top level) must call this once after the last block
// has been written, since a partially-filled volume never reaches
// VolumeSizeBytes on its own.
func (vm *VolumeManager) Flush(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.flush(ctx)
}

// flush uploads the current pending volume and marks it Uploaded.
// Called with vm.mu held; the upload itself runs between two short
// transactions rather than inside either of them.
func (vm *VolumeManager) flush(ctx context.Context) error {
	if vm.current == nil {
		return nil
	}
	pv := vm.current
	vm.current = nil

	err := vm.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetVolumeState(ctx, pv.volumeID, model.VolumeStateUploading)
	})
	if err != nil {
		return fmt.Errorf("mark volume %s uploading: %w", pv.name, err)
	}

	var body bytes.Buffer
	if err := pv.writer.Finish(&body); err != nil {
		return fmt.Errorf("finish block volume %s: %w", pv.name, err)
	}
	sum := sha256.Sum256(body.Bytes())
	volumeHash := hex.EncodeToString(sum[:])
	volumeLength := int64(body.Len())

	if err := vm.Backend.Put(ctx, pv.name, bytes.NewReader(body.Bytes())); err != nil {
		return fmt.Errorf("upload block volume %s: %w", pv.name, err)
	}

	err = vm.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetVolumeState(ctx, pv.volumeID, model.VolumeStateUploaded)
	})
	if err != nil {
		return fmt.Errorf("mark volume %s uploaded: %w", pv.name, err)
	}

	vm.indexedVolumes = append(vm.indexedVolumes, volume.IndexedVolume{
		Filename: pv.name, Hash: volumeHash, Length: volumeLength, Blocks: pv.blocks,
	})
	return nil
}

// IndexedVolumes returns the index-volume description of every block
// volume flushed so far. Safe to call only after Flush has returned,
// since it shares vm's own lock.
func (vm *VolumeManager) IndexedVolumes() []volume.IndexedVolume {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]volume.IndexedVolume, len(vm.indexedVolumes))
	copy(out, vm.indexedVolumes)
	return out
}
