package remote

import (
	"testing"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

func TestProbeFindsExactMatchFirst(t *testing.T) {
	d := Descriptor{Type: model.VolumeTypeBlocks, GUID: "abc", Time: time.Unix(1700000000, 0).UTC(), Compression: "gz", Encryption: "aes"}
	name := Generate(d)

	lookup := func(candidate string) (int64, bool) {
		if candidate == name {
			return 42, true
		}
		return 0, false
	}

	id, resolved := Probe(name, []string{"gz"}, []string{"", "aes"}, lookup)
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if resolved != name {
		t.Errorf("resolved = %q, want %q", resolved, name)
	}
}

func TestProbeFallsBackToCrossProduct(t *testing.T) {
	// The declared filename carries "lz4"/"none", but the loaded
	// codecs are "gz" and "aes" -- as if the volume was written by a
	// different configuration than the one now probing for it.
	declared := Generate(Descriptor{Type: model.VolumeTypeBlocks, GUID: "abc", Time: time.Unix(1700000000, 0).UTC(), Compression: "lz4"})

	wanted := Generate(Descriptor{Type: model.VolumeTypeBlocks, GUID: "abc", Time: time.Unix(1700000000, 0).UTC(), Compression: "gz", Encryption: "aes"})

	lookup := func(candidate string) (int64, bool) {
		if candidate == wanted {
			return 7, true
		}
		return 0, false
	}

	id, resolved := Probe(declared, []string{"gz"}, []string{"", "aes"}, lookup)
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if resolved != wanted {
		t.Errorf("resolved = %q, want %q", resolved, wanted)
	}
}

func TestProbeReturnsMissWhenNothingMatches(t *testing.T) {
	declared := Generate(Descriptor{Type: model.VolumeTypeBlocks, GUID: "abc", Time: time.Unix(1700000000, 0).UTC(), Compression: "lz4"})
	lookup := func(candidate string) (int64, bool) { return 0, false }

	id, resolved := Probe(declared, []string{"gz"}, []string{""}, lookup)
	if id != -1 {
		t.Errorf("id = %d, want -1", id)
	}
	if resolved != declared {
		t.Errorf("resolved = %q, want original %q", resolved, declared)
	}
}

func TestProbeUnparsableNameIsMiss(t *testing.T) {
	id, resolved := Probe("not-a-valid-name", nil, nil, func(string) (int64, bool) { return 99, true })
	if id != -1 || resolved != "not-a-valid-name" {
		t.Errorf("got (%d, %q), want (-1, original name) for an unparsable filename", id, resolved)
	}
}
