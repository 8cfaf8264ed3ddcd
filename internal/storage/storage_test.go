// Package storage tests for interface compliance and contract verification.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/blockvault/blockvault/internal/model"
)

// Compile-time interface conformance checks.
// Real conformance tests for the sqlite backend live in
// internal/storage/sqlite.
var (
	_ Storage              = (*mockStorage)(nil)
	_ Transaction          = (*mockTransaction)(nil)
	_ BlockLivenessQuerier = (*mockQuerier)(nil)
)

type mockStorage struct{}

func (m *mockStorage) FindBlock(ctx context.Context, hash string, size int64) (*model.Block, error) {
	return nil, ErrNotFound
}
func (m *mockStorage) BlockQuery(ctx context.Context) (BlockLivenessQuerier, error) {
	return &mockQuerier{}, nil
}
func (m *mockStorage) ListFilesets(ctx context.Context) ([]*model.Fileset, error) { return nil, nil }
func (m *mockStorage) GetFileset(ctx context.Context, filesetID int64) (*model.Fileset, error) {
	return nil, ErrNotFound
}
func (m *mockStorage) ListFilesetEntries(ctx context.Context, filesetID int64) ([]*model.FilesetEntry, error) {
	return nil, nil
}
func (m *mockStorage) GetOptions(ctx context.Context, filesetID int64) (map[string]string, error) {
	return nil, nil
}
func (m *mockStorage) ListRemoteVolumes(ctx context.Context, types ...model.VolumeType) ([]*model.RemoteVolume, error) {
	return nil, nil
}
func (m *mockStorage) GetRemoteVolume(ctx context.Context, volumeID int64) (*model.RemoteVolume, error) {
	return nil, ErrNotFound
}
func (m *mockStorage) GetRemoteVolumeByName(ctx context.Context, name string) (*model.RemoteVolume, error) {
	return nil, ErrNotFound
}
func (m *mockStorage) IndexVolumesFor(ctx context.Context, blockVolumeID int64) ([]*model.RemoteVolume, error) {
	return nil, nil
}
func (m *mockStorage) AllIndexBlockLinks(ctx context.Context) ([]model.IndexBlockLink, error) {
	return nil, nil
}
func (m *mockStorage) VolumeUsage(ctx context.Context, volumeID int64) (int64, int64, error) {
	return 0, 0, nil
}
func (m *mockStorage) DeletableBlockVolumes(ctx context.Context, graceCutoff int64) ([]int64, error) {
	return nil, nil
}
func (m *mockStorage) FilesetTimestamps(ctx context.Context) ([]int64, error) { return nil, nil }
func (m *mockStorage) ListBrokenFilesets(ctx context.Context, missingVolumeIDs []int64) ([]model.BrokenFileset, error) {
	return nil, nil
}
func (m *mockStorage) VerifyBlocksetConsistency(ctx context.Context, blockSize int64) ([]int64, error) {
	return nil, nil
}
func (m *mockStorage) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return fn(&mockTransaction{})
}
func (m *mockStorage) Close() error { return nil }
func (m *mockStorage) Path() string { return ":memory:" }
func (m *mockStorage) UnderlyingDB() *sql.DB { return nil }
func (m *mockStorage) UnderlyingConn(ctx context.Context) (*sql.Conn, error) { return nil, nil }

type mockTransaction struct{}

func (m *mockTransaction) InsertBlock(ctx context.Context, b *model.Block) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) FindBlock(ctx context.Context, hash string, size int64) (*model.Block, error) {
	return nil, ErrNotFound
}
func (m *mockTransaction) MarkBlockDeleted(ctx context.Context, hash string, size, volumeID int64) error {
	return nil
}
func (m *mockTransaction) AddDuplicateBlock(ctx context.Context, blockID, volumeID int64) error {
	return nil
}
func (m *mockTransaction) ReassignBlockVolume(ctx context.Context, blockID, newVolumeID int64) error {
	return nil
}
func (m *mockTransaction) PrepareForDelete(ctx context.Context, victimVolumeID int64, otherVictims []int64) error {
	return nil
}
func (m *mockTransaction) InsertBlockset(ctx context.Context, bs *model.Blockset) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) FindBlocksetByHash(ctx context.Context, fullHash string, length int64) (*model.Blockset, error) {
	return nil, ErrNotFound
}
func (m *mockTransaction) AddBlocksetEntry(ctx context.Context, e *model.BlocksetEntry) error {
	return nil
}
func (m *mockTransaction) AddBlocklistHash(ctx context.Context, h *model.BlocklistHash) error {
	return nil
}
func (m *mockTransaction) InsertMetadataset(ctx context.Context, meta *model.Metadataset) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) FindBlocklistHashOccurrences(ctx context.Context, hash string) ([]model.BlocklistHash, error) {
	return nil, nil
}
func (m *mockTransaction) InternPathPrefix(ctx context.Context, prefix string) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) UpsertFileLookup(ctx context.Context, f *model.FileLookup) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) SetChangeJournalData(ctx context.Context, d *model.ChangeJournalData) error {
	return nil
}
func (m *mockTransaction) LookupFileHistory(ctx context.Context, pathPrefixID int64, name string) (*model.FileHistory, error) {
	return nil, ErrNotFound
}
func (m *mockTransaction) LookupFileLastModified(ctx context.Context, pathPrefixID int64, name string) (time.Time, error) {
	return time.Time{}, ErrNotFound
}
func (m *mockTransaction) ListBlocklistHashes(ctx context.Context, blocksetID int64) ([]model.BlocklistHash, error) {
	return nil, nil
}
func (m *mockTransaction) GetChangeJournalData(ctx context.Context, fileID int64) ([]byte, error) {
	return nil, ErrNotFound
}
func (m *mockTransaction) SetFilesetVolume(ctx context.Context, filesetID, volumeID int64) error {
	return nil
}
func (m *mockTransaction) InsertFileset(ctx context.Context, fs *model.Fileset) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) AddFilesetEntry(ctx context.Context, e *model.FilesetEntry) error {
	return nil
}
func (m *mockTransaction) SetOption(ctx context.Context, o *model.Option) error { return nil }
func (m *mockTransaction) DropFileset(ctx context.Context, filesetID int64) error { return nil }
func (m *mockTransaction) InsertRemoteVolume(ctx context.Context, v *model.RemoteVolume) (int64, error) {
	return 1, nil
}
func (m *mockTransaction) SetVolumeState(ctx context.Context, volumeID int64, state model.VolumeState) error {
	return nil
}
func (m *mockTransaction) LinkIndexVolume(ctx context.Context, link *model.IndexBlockLink) error {
	return nil
}
func (m *mockTransaction) GetRemoteVolumeByName(ctx context.Context, name string) (*model.RemoteVolume, error) {
	return nil, ErrNotFound
}

type mockQuerier struct{}

func (m *mockQuerier) IsLive(hash string, size int64) (bool, error) { return true, nil }
func (m *mockQuerier) Close() error                                 { return nil }
