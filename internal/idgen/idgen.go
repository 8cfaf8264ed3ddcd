// Package idgen generates the GUIDs embedded in remote volume names.
package idgen

import "github.com/google/uuid"

// VolumeGUID returns a new random identifier suitable for embedding in
// a remote volume filename (see internal/remote's filename codec).
func VolumeGUID() string {
	return uuid.New().String()
}
