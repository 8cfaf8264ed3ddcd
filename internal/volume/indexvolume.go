package volume

import (
	"encoding/json"
	"fmt"
	"io"
)

// IndexedBlock is one (hash, size) entry within an IndexedVolume.
type IndexedBlock struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// IndexedVolume describes one block volume from an index volume's
// point of view.
type IndexedVolume struct {
	Filename string         `json:"filename"`
	Hash     string         `json:"hash"`
	Length   int64          `json:"length"`
	Blocks   []IndexedBlock `json:"blocks"`
}

// IndexedBlocklist carries one blocklist hash's constituent hashes,
// redundantly, so a reader rarely needs to fetch the block volume
// itself just to resolve a blocklist.
type IndexedBlocklist struct {
	Hash      string   `json:"hash"`
	Blocklist []string `json:"blocklist"`
}

type indexVolumeManifest struct {
	Volumes    []IndexedVolume    `json:"volumes"`
	BlockLists []IndexedBlocklist `json:"block_lists"`
}

// IndexVolumeWriter accumulates the volumes and blocklists an index
// volume declares, then serialises them as one JSON document.
type IndexVolumeWriter struct {
	manifest indexVolumeManifest
}

func NewIndexVolumeWriter() *IndexVolumeWriter {
	return &IndexVolumeWriter{}
}

func (w *IndexVolumeWriter) AddVolume(v IndexedVolume) {
	w.manifest.Volumes = append(w.manifest.Volumes, v)
}

func (w *IndexVolumeWriter) AddBlocklist(b IndexedBlocklist) {
	w.manifest.BlockLists = append(w.manifest.BlockLists, b)
}

func (w *IndexVolumeWriter) WriteTo(dst io.Writer) error {
	enc := json.NewEncoder(dst)
	if err := enc.Encode(w.manifest); err != nil {
		return fmt.Errorf("write index volume: %w", err)
	}
	return nil
}

// IndexVolumeReader exposes the declared volumes and blocklists of a
// downloaded index volume.
type IndexVolumeReader struct {
	manifest indexVolumeManifest
}

func ReadIndexVolume(r io.Reader) (*IndexVolumeReader, error) {
	var m indexVolumeManifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("read index volume: %w", err)
	}
	return &IndexVolumeReader{manifest: m}, nil
}

func (r *IndexVolumeReader) Volumes() []IndexedVolume         { return r.manifest.Volumes }
func (r *IndexVolumeReader) BlockLists() []IndexedBlocklist   { return r.manifest.BlockLists }
