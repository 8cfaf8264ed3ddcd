package sqlite

// schema is applied on every open, inside a single migration step (see
// migrations.go); its CREATE ... IF NOT EXISTS statements make a
// repeated run a no-op. Every table here maps directly onto a type in
// internal/model; keep the two in sync.
const schema = `
PRAGMA foreign_keys = ON;

-- Blocks: one row per unique (hash, size), pointing at the block
-- volume that currently holds the live copy.
CREATE TABLE IF NOT EXISTS block (
    id INTEGER PRIMARY KEY,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    volume_id INTEGER NOT NULL REFERENCES remote_volume(id),
    UNIQUE(hash, size)
);
CREATE INDEX IF NOT EXISTS idx_block_volume ON block(volume_id);

-- Historical record of blocks whose last reference disappeared. Kept
-- for wasted-space accounting only; never consulted for liveness.
CREATE TABLE IF NOT EXISTS deleted_block (
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    volume_id INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deleted_block_volume ON deleted_block(volume_id);

-- Additional physical copies of a block produced by compaction.
CREATE TABLE IF NOT EXISTS duplicate_block (
    block_id INTEGER NOT NULL REFERENCES block(id),
    volume_id INTEGER NOT NULL REFERENCES remote_volume(id),
    PRIMARY KEY (block_id, volume_id)
);

-- Blocksets: an ordered sequence of blocks forming one file's or
-- metadata record's content.
CREATE TABLE IF NOT EXISTS blockset (
    id INTEGER PRIMARY KEY,
    full_hash TEXT NOT NULL,
    length INTEGER NOT NULL,
    UNIQUE(full_hash, length)
);

CREATE TABLE IF NOT EXISTS blockset_entry (
    blockset_id INTEGER NOT NULL REFERENCES blockset(id),
    idx INTEGER NOT NULL,
    block_id INTEGER NOT NULL REFERENCES block(id),
    PRIMARY KEY (blockset_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_blockset_entry_block ON blockset_entry(block_id);

CREATE TABLE IF NOT EXISTS blocklist_hash (
    blockset_id INTEGER NOT NULL REFERENCES blockset(id),
    idx INTEGER NOT NULL,
    hash TEXT NOT NULL,
    PRIMARY KEY (blockset_id, idx)
);

CREATE TABLE IF NOT EXISTS metadataset (
    id INTEGER PRIMARY KEY,
    blockset_id INTEGER NOT NULL REFERENCES blockset(id)
);

-- Interned directory prefixes.
CREATE TABLE IF NOT EXISTS path_prefix (
    id INTEGER PRIMARY KEY,
    prefix TEXT NOT NULL UNIQUE
);

-- Deduped file identity. blockset_id = -1 (SentinelBlocksetID) for
-- folders and symlinks, which carry only a metadataset.
CREATE TABLE IF NOT EXISTS file_lookup (
    id INTEGER PRIMARY KEY,
    path_prefix_id INTEGER NOT NULL REFERENCES path_prefix(id),
    name TEXT NOT NULL,
    blockset_id INTEGER NOT NULL,
    metadata_id INTEGER NOT NULL REFERENCES metadataset(id),
    UNIQUE(path_prefix_id, name)
);
CREATE INDEX IF NOT EXISTS idx_file_lookup_blockset ON file_lookup(blockset_id);

-- Opaque per-file change-journal cookie, dropped when its file_lookup
-- row becomes orphaned.
CREATE TABLE IF NOT EXISTS change_journal_data (
    file_id INTEGER PRIMARY KEY REFERENCES file_lookup(id),
    journal_data BLOB NOT NULL
);

-- One row per backup snapshot.
CREATE TABLE IF NOT EXISTS fileset (
    id INTEGER PRIMARY KEY,
    "timestamp" INTEGER NOT NULL,
    volume_id INTEGER NOT NULL REFERENCES remote_volume(id),
    is_full_backup INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_fileset_timestamp ON fileset("timestamp");

-- Many-to-many bridge between fileset and file_lookup.
CREATE TABLE IF NOT EXISTS fileset_entry (
    fileset_id INTEGER NOT NULL REFERENCES fileset(id),
    file_id INTEGER NOT NULL REFERENCES file_lookup(id),
    last_modified INTEGER NOT NULL,
    PRIMARY KEY (fileset_id, file_id)
);
CREATE INDEX IF NOT EXISTS idx_fileset_entry_file ON fileset_entry(file_id);

-- Per-fileset key/value settings snapshot (blocksize, compression and
-- encryption module in force when that fileset was written), consulted
-- by the pre-downgrade safeguard.
CREATE TABLE IF NOT EXISTS option (
    fileset_id INTEGER NOT NULL REFERENCES fileset(id),
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (fileset_id, key)
);

-- Remote archives: file-list, block, and index volumes.
CREATE TABLE IF NOT EXISTS remote_volume (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL CHECK(type IN ('Files', 'Blocks', 'Index')),
    state TEXT NOT NULL CHECK(state IN ('Temporary', 'Uploading', 'Uploaded', 'Verified', 'Deleting', 'Deleted')),
    size INTEGER NOT NULL DEFAULT 0,
    hash TEXT NOT NULL DEFAULT '',
    delete_grace_period_seconds INTEGER NOT NULL DEFAULT 0,
    deleting_since INTEGER
);
CREATE INDEX IF NOT EXISTS idx_remote_volume_type_state ON remote_volume(type, state);

-- Index volume -> block volume links. One index volume may describe
-- more than one block volume.
CREATE TABLE IF NOT EXISTS index_block_link (
    index_volume_id INTEGER NOT NULL REFERENCES remote_volume(id),
    block_volume_id INTEGER NOT NULL REFERENCES remote_volume(id),
    PRIMARY KEY (index_volume_id, block_volume_id)
);
CREATE INDEX IF NOT EXISTS idx_index_block_link_block ON index_block_link(block_volume_id);
`
