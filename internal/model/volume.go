// Package model defines the entities of the local index database:
// blocks, blocksets, filesets, path prefixes, and remote volumes.
package model

import "time"

// VolumeType distinguishes the three kinds of remote archive.
type VolumeType string

// Remote volume kinds, per the naming scheme in the filename codec.
const (
	VolumeTypeFiles  VolumeType = "Files"
	VolumeTypeBlocks VolumeType = "Blocks"
	VolumeTypeIndex  VolumeType = "Index"
)

// VolumeState is a node in the RemoteVolume lifecycle DAG:
//
//	Temporary -> Uploading -> Uploaded -> Verified -> Deleting -> Deleted
//
// Only Uploaded and Verified volumes may serve reads.
type VolumeState string

const (
	VolumeStateTemporary VolumeState = "Temporary"
	VolumeStateUploading VolumeState = "Uploading"
	VolumeStateUploaded  VolumeState = "Uploaded"
	VolumeStateVerified  VolumeState = "Verified"
	VolumeStateDeleting  VolumeState = "Deleting"
	VolumeStateDeleted   VolumeState = "Deleted"
)

// Readable reports whether volumes in this state may serve reads.
func (s VolumeState) Readable() bool {
	return s == VolumeStateUploaded || s == VolumeStateVerified
}

// RemoteVolume is one addressable archive on the remote backend.
type RemoteVolume struct {
	ID                int64
	Name              string
	Type              VolumeType
	State             VolumeState
	Size              int64
	Hash              string
	DeleteGracePeriod time.Duration
}

// IndexBlockLink pairs an index volume with a block volume it describes.
// A single index volume may link to more than one block volume.
type IndexBlockLink struct {
	IndexVolumeID int64
	BlockVolumeID int64
}
