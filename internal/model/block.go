package model

// Block is a unique (hash, size) pair stored exactly once in a remote
// block volume. Invariant: (Hash, Size) is globally unique in the
// Block table.
type Block struct {
	ID       int64
	Hash     string
	Size     int64
	VolumeID int64
}

// DeletedBlock is the historical record of a block whose logical
// references disappeared. Kept only for wasted-space accounting; it
// is never consulted for liveness.
type DeletedBlock struct {
	Hash     string
	Size     int64
	VolumeID int64
}

// DuplicateBlock is an additional physical copy of a block produced
// during compaction. The primary copy stays in Block.VolumeID;
// DuplicateBlock never records a copy in that same volume.
type DuplicateBlock struct {
	BlockID  int64
	VolumeID int64
}
