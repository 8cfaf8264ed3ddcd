package model

// Blockset is an ordered sequence of blocks representing a file's or
// metadata record's contents.
type Blockset struct {
	ID       int64
	FullHash string
	Length   int64
}

// BlocksetEntry carries the order of blocks within a blockset.
type BlocksetEntry struct {
	BlocksetID int64
	Index      int
	BlockID    int64
}

// BlocklistHash is a hash-of-hashes chunk used when a blockset spans
// more than one block. A blockset of length <= blocksize has either no
// blocklist hashes or exactly one; longer blocksets have
// ceil(n / hashesPerBlock) of them.
type BlocklistHash struct {
	BlocksetID int64
	Index      int
	Hash       string
}

// Metadataset is a blockset holding serialised POSIX/Windows metadata
// for a file, folder, or symlink.
type Metadataset struct {
	ID         int64
	BlocksetID int64
}

// SentinelBlocksetID marks a FileLookup entry (folder or symlink) that
// carries no file content, only a Metadataset.
const SentinelBlocksetID int64 = -1
