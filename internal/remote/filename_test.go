package remote

import (
	"testing"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	cases := []Descriptor{
		{Prefix: "blockvault", Type: model.VolumeTypeBlocks, GUID: "abc123", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Compression: "gz"},
		{Prefix: "blockvault", Type: model.VolumeTypeIndex, GUID: "def456", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Compression: "gz", Encryption: "aes"},
		{Prefix: "blockvault", Type: model.VolumeTypeFiles, GUID: "ghi789", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Compression: ""},
	}

	for _, d := range cases {
		name := Generate(d)
		got, err := Parse(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != d {
			t.Errorf("round trip mismatch for %q: got %+v, want %+v", name, got, d)
		}
	}
}

func TestGenerateStripsHyphensFromGUID(t *testing.T) {
	name := Generate(Descriptor{
		Type: model.VolumeTypeBlocks, GUID: "ab-cd-ef", Time: time.Unix(0, 0).UTC(), Compression: "gz",
	})
	d, err := Parse(name)
	if err != nil {
		t.Fatalf("parse %q: %v", name, err)
	}
	if d.GUID != "abcdef" {
		t.Errorf("GUID = %q, want %q (hyphens stripped)", d.GUID, "abcdef")
	}
}

func TestParseRejectsMalformedNames(t *testing.T) {
	cases := []string{
		"no-extension-at-all",
		"onlyonepart.gz",
		"prefix-x1234-20260102T030405Z.gz", // unknown type code
	}
	for _, name := range cases {
		if _, err := Parse(name); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", name)
		}
	}
}

func TestParsePreservesUnencryptedVolumes(t *testing.T) {
	name := Generate(Descriptor{Type: model.VolumeTypeIndex, GUID: "abc", Time: time.Unix(1700000000, 0).UTC(), Compression: "gz"})
	d, err := Parse(name)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Encryption != "" {
		t.Errorf("Encryption = %q, want empty for an unencrypted volume", d.Encryption)
	}
}
