package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/volume"
)

// sha256Size is how many bytes one block hash occupies, used to size
// blocklist chunks so a blocklist's serialised hashes fit in one block
// themselves.
const sha256Size = sha256.Size

// StreamBlockSplitter turns a content stream into a content-addressed
// Blockset: fixed-size chunks, each hashed and handed to a
// ContentWriter for storage, with the resulting block ids recorded as
// BlocksetEntry rows and (for multi-block content) grouped into
// BlocklistHash rows the same way a downloaded blockset is reconciled
// in internal/recreate.
type StreamBlockSplitter struct {
	Storage storage.Storage
	Writer  ContentWriter
	Options Options
}

func (s *StreamBlockSplitter) blockSize() int64 {
	if s.Options.BlockSizeBytes <= 0 {
		return 100 * 1024 * 1024
	}
	return s.Options.BlockSizeBytes
}

type splitBlock struct {
	hash    string
	blockID int64
}

// SplitResult is everything Split learns about a stream's content: the
// registered Blockset id plus the full content hash, length, and
// top-level blocklist hashes a Files volume entry needs -- all of it
// already computed in memory during chunking, so building a FileEntry
// never requires a second pass over the content.
type SplitResult struct {
	BlocksetID      int64
	Hash            string
	Length          int64
	BlocklistHashes []string

	// NewBlocklists carries one IndexedBlocklist per blocklist hash
	// this call newly registered, for the caller to declare in this
	// run's index volume. Empty when the blockset was already known
	// (whole-content dedup against an earlier backup), since its
	// blocklists are already declared in that backup's index volume.
	NewBlocklists []volume.IndexedBlocklist
}

// Split reads r to completion, storing its content as a Blockset and
// returning the blockset id alongside the content hash/length/
// blocklist hashes.
func (s *StreamBlockSplitter) Split(ctx context.Context, r io.Reader) (SplitResult, error) {
	blockSize := s.blockSize()
	hashesPerList := blockSize / sha256Size
	if hashesPerList < 1 {
		hashesPerList = 1
	}

	fullHash := sha256.New()
	buf := make([]byte, blockSize)

	var blocks []splitBlock
	var totalLen int64

	for {
		if err := progress.Checkpoint(ctx); err != nil {
			return SplitResult{}, err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			fullHash.Write(chunk)
			sum := sha256.Sum256(chunk)
			hash := hex.EncodeToString(sum[:])

			blockID, werr := s.Writer.PutBlock(ctx, hash, int64(n), chunk)
			if werr != nil {
				return SplitResult{}, fmt.Errorf("split: store block: %w", werr)
			}
			blocks = append(blocks, splitBlock{hash: hash, blockID: blockID})
			totalLen += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return SplitResult{}, fmt.Errorf("split: read content: %w", err)
		}
	}

	contentHash := hex.EncodeToString(fullHash.Sum(nil))
	blocksetID, newBlocklists, err := s.registerBlockset(ctx, contentHash, totalLen, blocks, hashesPerList)
	if err != nil {
		return SplitResult{}, err
	}
	return SplitResult{
		BlocksetID:      blocksetID,
		Hash:            contentHash,
		Length:          totalLen,
		BlocklistHashes: computeBlocklistHashes(blocks, hashesPerList),
		NewBlocklists:   newBlocklists,
	}, nil
}

// computeBlocklistHashes reproduces, from the same in-memory chunk
// list, exactly the blocklist hash values registerBlockset persists as
// BlocklistHash rows: a single-block content's own block hash, or one
// group hash per hashesPerList-sized run of blocks.
func computeBlocklistHashes(blocks []splitBlock, hashesPerList int64) []string {
	switch {
	case len(blocks) == 0:
		return nil
	case len(blocks) == 1:
		return []string{blocks[0].hash}
	default:
		out := make([]string, 0, (len(blocks)+int(hashesPerList)-1)/int(hashesPerList))
		for i := 0; i < len(blocks); i += int(hashesPerList) {
			end := i + int(hashesPerList)
			if end > len(blocks) {
				end = len(blocks)
			}
			group := blocks[i:end]
			hashes := make([]string, len(group))
			for j, b := range group {
				hashes[j] = b.hash
			}
			out = append(out, hashBlocklist(hashes))
		}
		return out
	}
}

// registerBlockset finds or creates the Blockset row for (fullHash,
// length), and on first creation writes its BlocksetEntry and
// BlocklistHash rows. A blockset already known from an earlier file
// with identical content is reused outright: whole-file deduplication
// happens here, one level above the per-block deduplication
// ContentWriter.PutBlock already did.
func (s *StreamBlockSplitter) registerBlockset(ctx context.Context, fullHash string, length int64, blocks []splitBlock, hashesPerList int64) (int64, []volume.IndexedBlocklist, error) {
	var blocksetID int64
	var newBlocklists []volume.IndexedBlocklist
	err := s.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if existing, err := tx.FindBlocksetByHash(ctx, fullHash, length); err == nil {
			blocksetID = existing.ID
			return nil
		} else if err != storage.ErrNotFound {
			return fmt.Errorf("find blockset: %w", err)
		}

		id, err := tx.InsertBlockset(ctx, &model.Blockset{FullHash: fullHash, Length: length})
		if err != nil {
			return fmt.Errorf("insert blockset: %w", err)
		}
		blocksetID = id

		for i, b := range blocks {
			if err := tx.AddBlocksetEntry(ctx, &model.BlocksetEntry{
				BlocksetID: blocksetID, Index: i, BlockID: b.blockID,
			}); err != nil {
				return fmt.Errorf("add blockset entry: %w", err)
			}
		}

		switch {
		case len(blocks) == 1:
			// SmallBlocksetLink shortcut (spec §4.9 P2): a
			// single-block blockset's hash is registered directly as
			// its own one-entry blocklist, so recreate's
			// reconciliation treats it identically to a multi-block
			// file.
			if err := tx.AddBlocklistHash(ctx, &model.BlocklistHash{
				BlocksetID: blocksetID, Index: 0, Hash: blocks[0].hash,
			}); err != nil {
				return fmt.Errorf("link small blockset: %w", err)
			}
			newBlocklists = append(newBlocklists, volume.IndexedBlocklist{
				Hash: blocks[0].hash, Blocklist: []string{blocks[0].hash},
			})
		case len(blocks) > 1:
			for i := 0; i < len(blocks); i += int(hashesPerList) {
				end := i + int(hashesPerList)
				if end > len(blocks) {
					end = len(blocks)
				}
				group := blocks[i:end]
				hashes := make([]string, len(group))
				for j, b := range group {
					hashes[j] = b.hash
				}
				groupHash := hashBlocklist(hashes)
				if err := tx.AddBlocklistHash(ctx, &model.BlocklistHash{
					BlocksetID: blocksetID, Index: i / int(hashesPerList), Hash: groupHash,
				}); err != nil {
					return fmt.Errorf("add blocklist hash: %w", err)
				}
				newBlocklists = append(newBlocklists, volume.IndexedBlocklist{Hash: groupHash, Blocklist: hashes})
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return blocksetID, newBlocklists, nil
}

func hashBlocklist(hashes []string) string {
	h := sha256.New()
	for _, hh := range hashes {
		h.Write([]byte(hh))
	}
	return hex.EncodeToString(h.Sum(nil))
}
