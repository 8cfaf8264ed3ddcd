package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CoreSymlinkTarget is the metadata key a Store-policy symlink's
// target path is recorded under (spec §4.11).
const CoreSymlinkTarget = "CoreSymlinkTarget"

// encodeMetadata serialises a platform metadata record the same way
// for every entry kind, so Metadataset blocksets hash and dedupe
// exactly like file content does.
func encodeMetadata(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func hashMetadata(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
