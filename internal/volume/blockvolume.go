// Package volume implements the three remote archive formats: block
// volumes (the compressed block payloads themselves), index volumes
// (redundant manifests so block downloads are rare), and file-list
// volumes (the per-backup path listing).
package volume

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// BlockEntry locates one block's already-compressed-and-encrypted
// payload within a block volume.
type BlockEntry struct {
	Hash   string `json:"hash"`
	Size   int64  `json:"size"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"` // on-disk length, which may differ from Size once compressed
}

// blockVolumeManifest is the directory listing written once at the
// front of a block volume, length-prefixed so a reader can seek past
// it directly to any block's payload.
type blockVolumeManifest struct {
	Blocks     []BlockEntry        `json:"blocks"`
	Blocklists map[string][]string `json:"blocklists,omitempty"` // hash -> ordered constituent hashes
}

// BlockVolumeWriter assembles a block volume: a length-prefixed JSON
// manifest followed by the concatenated block payloads, in the order
// WriteBlock was called.
type BlockVolumeWriter struct {
	w        io.Writer
	manifest blockVolumeManifest
	offset   int64
	payloads [][]byte
}

// NewBlockVolumeWriter returns a writer that buffers block payloads in
// memory until Finish is called; block volumes are bounded by the
// configured volume-size budget, so this is never unbounded.
func NewBlockVolumeWriter() *BlockVolumeWriter {
	return &BlockVolumeWriter{manifest: blockVolumeManifest{Blocklists: map[string][]string{}}}
}

// WriteBlock appends one already-compressed-and-encrypted block
// payload, recording its manifest entry.
func (w *BlockVolumeWriter) WriteBlock(hash string, size int64, payload []byte) {
	w.manifest.Blocks = append(w.manifest.Blocks, BlockEntry{
		Hash: hash, Size: size, Offset: w.offset, Length: int64(len(payload)),
	})
	w.offset += int64(len(payload))
	w.payloads = append(w.payloads, payload)
}

// WriteBlocklist records the ordered constituent block hashes for a
// blocklist hash entry, so IndexVolumeWriter can carry it redundantly.
func (w *BlockVolumeWriter) WriteBlocklist(blocklistHash string, constituents []string) {
	w.manifest.Blocklists[blocklistHash] = constituents
}

// Finish writes the manifest and payloads to dst.
func (w *BlockVolumeWriter) Finish(dst io.Writer) error {
	manifestBytes, err := json.Marshal(w.manifest)
	if err != nil {
		return fmt.Errorf("marshal block volume manifest: %w", err)
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(manifestBytes)))
	if _, err := dst.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write manifest length: %w", err)
	}
	if _, err := dst.Write(manifestBytes); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	for _, p := range w.payloads {
		if _, err := dst.Write(p); err != nil {
			return fmt.Errorf("write block payload: %w", err)
		}
	}
	return nil
}

// BlockVolumeReader exposes random access into an already-downloaded
// block volume file.
type BlockVolumeReader struct {
	ra       io.ReaderAt
	manifest blockVolumeManifest
	base     int64 // byte offset where payloads begin
}

// OpenBlockVolumeReader reads the manifest from the front of ra (sized
// size) and returns a reader ready to serve ReadBlock calls.
func OpenBlockVolumeReader(ra io.ReaderAt, size int64) (*BlockVolumeReader, error) {
	var lenBuf [8]byte
	if _, err := ra.ReadAt(lenBuf[:], 0); err != nil {
		return nil, fmt.Errorf("read manifest length: %w", err)
	}
	manifestLen := int64(binary.BigEndian.Uint64(lenBuf[:]))
	if manifestLen < 0 || 8+manifestLen > size {
		return nil, fmt.Errorf("block volume manifest length %d out of range", manifestLen)
	}

	manifestBytes := make([]byte, manifestLen)
	if _, err := ra.ReadAt(manifestBytes, 8); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m blockVolumeManifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return nil, fmt.Errorf("decode block volume manifest: %w", err)
	}

	return &BlockVolumeReader{ra: ra, manifest: m, base: 8 + manifestLen}, nil
}

// Blocks returns the (hash, size) directory of every block this volume
// carries.
func (r *BlockVolumeReader) Blocks() []BlockEntry {
	return r.manifest.Blocks
}

// ReadBlock returns the raw (compressed, encrypted) payload for hash.
// Decompression and decryption are the caller's responsibility
// (internal/codec).
func (r *BlockVolumeReader) ReadBlock(hash string) ([]byte, error) {
	for _, e := range r.manifest.Blocks {
		if e.Hash != hash {
			continue
		}
		buf := make([]byte, e.Length)
		if _, err := r.ra.ReadAt(buf, r.base+e.Offset); err != nil {
			return nil, fmt.Errorf("read block %s: %w", hash, err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("block %s not found in volume", hash)
}

// ReadBlocklist returns the ordered constituent hashes for a blocklist
// hash, if this volume carries it.
func (r *BlockVolumeReader) ReadBlocklist(hash string) ([]string, bool) {
	hashes, ok := r.manifest.Blocklists[hash]
	return hashes, ok
}
