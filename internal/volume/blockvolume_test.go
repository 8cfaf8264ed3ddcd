package volume_test

import (
	"bytes"
	"testing"

	"github.com/blockvault/blockvault/internal/volume"
)

func TestBlockVolumeWriteAndReadBack(t *testing.T) {
	w := volume.NewBlockVolumeWriter()
	w.WriteBlock("hash1", 3, []byte("abc"))
	w.WriteBlock("hash2", 5, []byte("defgh"))
	w.WriteBlocklist("blhash", []string{"hash1", "hash2"})

	var buf bytes.Buffer
	if err := w.Finish(&buf); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r, err := volume.OpenBlockVolumeReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	blocks := r.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}

	payload1, err := r.ReadBlock("hash1")
	if err != nil {
		t.Fatalf("read hash1: %v", err)
	}
	if string(payload1) != "abc" {
		t.Errorf("payload1 = %q, want %q", payload1, "abc")
	}

	payload2, err := r.ReadBlock("hash2")
	if err != nil {
		t.Fatalf("read hash2: %v", err)
	}
	if string(payload2) != "defgh" {
		t.Errorf("payload2 = %q, want %q", payload2, "defgh")
	}

	hashes, ok := r.ReadBlocklist("blhash")
	if !ok {
		t.Fatal("expected blocklist to be present")
	}
	if len(hashes) != 2 || hashes[0] != "hash1" || hashes[1] != "hash2" {
		t.Errorf("blocklist = %v, want [hash1 hash2]", hashes)
	}
}

func TestBlockVolumeReadBlockMissing(t *testing.T) {
	w := volume.NewBlockVolumeWriter()
	w.WriteBlock("hash1", 3, []byte("abc"))

	var buf bytes.Buffer
	if err := w.Finish(&buf); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r, err := volume.OpenBlockVolumeReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	if _, err := r.ReadBlock("missing"); err == nil {
		t.Error("expected an error reading a block not in the volume")
	}
}

func TestBlockVolumeReadBlocklistMissingIsFalse(t *testing.T) {
	w := volume.NewBlockVolumeWriter()
	var buf bytes.Buffer
	if err := w.Finish(&buf); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r, err := volume.OpenBlockVolumeReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	if _, ok := r.ReadBlocklist("missing"); ok {
		t.Error("expected ok=false for a blocklist hash this volume doesn't carry")
	}
}
