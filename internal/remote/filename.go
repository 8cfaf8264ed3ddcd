// Package remote defines the backend capability interface and the
// bit-exact remote filename codec the engine uses to address volumes.
package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

// typeCode is the single letter embedded in a volume filename.
const (
	typeCodeBlocks   = "b"
	typeCodeIndex    = "i"
	typeCodeFileList = "f"
)

func typeCode(t model.VolumeType) (string, error) {
	switch t {
	case model.VolumeTypeBlocks:
		return typeCodeBlocks, nil
	case model.VolumeTypeIndex:
		return typeCodeIndex, nil
	case model.VolumeTypeFiles:
		return typeCodeFileList, nil
	default:
		return "", fmt.Errorf("unknown volume type %q", t)
	}
}

func volumeType(code string) (model.VolumeType, error) {
	switch code {
	case typeCodeBlocks:
		return model.VolumeTypeBlocks, nil
	case typeCodeIndex:
		return model.VolumeTypeIndex, nil
	case typeCodeFileList:
		return model.VolumeTypeFiles, nil
	default:
		return "", fmt.Errorf("unknown volume type code %q", code)
	}
}

// timeLayout is the ISO 8601 basic-format layout embedded in the
// filename: compact enough to avoid characters some backends reject
// (colons, most notably) while staying lexically sortable.
const timeLayout = "20060102T150405Z"

// Descriptor is the parsed form of a remote filename. GUID is always
// hyphen-stripped (see idgen.VolumeGUID callers), so it and Time never
// introduce a "-" that Parse would have to disambiguate from the one
// separating Prefix from the rest.
type Descriptor struct {
	Prefix      string
	Type        model.VolumeType
	GUID        string
	Time        time.Time
	Compression string
	Encryption  string // "" when the volume is unencrypted
}

// Generate produces the canonical filename for d. Parse and Generate
// must be exact inverses of each other.
func Generate(d Descriptor) string {
	code, err := typeCode(d.Type)
	if err != nil {
		// Generate is only ever called with a Descriptor that either
		// came from Parse or was built by this package, so an unknown
		// type here means a caller is misusing the API.
		panic(err)
	}
	guid := strings.ReplaceAll(d.GUID, "-", "")
	name := fmt.Sprintf("%s-%s%s-%s.%s",
		d.Prefix, code, guid, d.Time.UTC().Format(timeLayout), d.Compression)
	if d.Encryption != "" {
		name += "." + d.Encryption
	}
	return name
}

// Parse decodes a remote filename into its Descriptor. Returns an
// error if the filename doesn't match the
// <prefix>-<type><guid>-<time>.<compression>[.<encryption>] shape.
func Parse(name string) (Descriptor, error) {
	head, extPart, ok := cutFirst(name, ".")
	if !ok {
		return Descriptor{}, fmt.Errorf("parse remote filename %q: missing extension", name)
	}

	parts := strings.Split(head, "-")
	if len(parts) < 3 {
		return Descriptor{}, fmt.Errorf("parse remote filename %q: expected <prefix>-<type+guid>-<time>", name)
	}
	timePart := parts[len(parts)-1]
	typeAndGUID := parts[len(parts)-2]
	prefix := strings.Join(parts[:len(parts)-2], "-")

	if len(typeAndGUID) < 2 {
		return Descriptor{}, fmt.Errorf("parse remote filename %q: type/guid segment too short", name)
	}
	vt, err := volumeType(typeAndGUID[:1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse remote filename %q: %w", name, err)
	}
	guid := typeAndGUID[1:]

	t, err := time.Parse(timeLayout, timePart)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse remote filename %q: bad time %q: %w", name, timePart, err)
	}

	compression, encryption, _ := cutFirst(extPart, ".")

	return Descriptor{
		Prefix:      prefix,
		Type:        vt,
		GUID:        guid,
		Time:        t.UTC(),
		Compression: compression,
		Encryption:  encryption,
	}, nil
}

func cutFirst(s, sep string) (before, after string, found bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}
