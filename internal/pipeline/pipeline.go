// Package pipeline implements the backup-side coroutine pipeline of
// spec §4.11 and §5: a metadata pre-processor, a content splitter, and
// a volume manager composed as cooperative stages communicating over
// bounded channels, suspending only at channel operations, remote I/O,
// or a progress checkpoint.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockvault/blockvault/internal/idgen"
	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/volume"
)

// BackupPipeline wires the pre-processor, splitter, and volume manager
// into one run against a bounded worker pool. Beyond block volumes
// (the VolumeMgr's job), a run must also assemble the one Files volume
// and one Index volume that make this backup's fileset independently
// recoverable: Run accumulates a FileEntry per scanned path and every
// blocklist newly registered while processing it, then uploads both at
// the end.
type BackupPipeline struct {
	Storage      storage.Storage
	Backend      remote.Backend
	PreProcessor *MetadataPreProcessor
	Splitter     *StreamBlockSplitter
	VolumeMgr    *VolumeManager
	Options      Options
	Reporter     progress.Reporter

	Concurrency int

	mu          sync.Mutex
	fileEntries []volume.FileEntry
	blocklists  []volume.IndexedBlocklist
}

// fileResult is what one worker produces for one regular file.
type fileResult struct {
	entry        ScanEntry
	prefixID     int64
	name         string
	oldFileID    int64 // valid when reused is true
	blocksetID   int64
	metadataID   int64
	reused       bool
	lastModified time.Time
	hash         string
	metaHash     string
	metaSize     int64
	err          error
	retryable    bool
}

func (bp *BackupPipeline) addFileEntry(fe volume.FileEntry) {
	bp.mu.Lock()
	bp.fileEntries = append(bp.fileEntries, fe)
	bp.mu.Unlock()
}

func (bp *BackupPipeline) addBlocklist(b volume.IndexedBlocklist) {
	bp.mu.Lock()
	bp.blocklists = append(bp.blocklists, b)
	bp.mu.Unlock()
}

func (bp *BackupPipeline) addBlocklists(bs []volume.IndexedBlocklist) {
	if len(bs) == 0 {
		return
	}
	bp.mu.Lock()
	bp.blocklists = append(bp.blocklists, bs...)
	bp.mu.Unlock()
}

// Run drains entries, pre-processes and splits each regular file
// (reusing its existing FileLookup row outright when Unchanged), and
// links every resulting file into filesetID. Folders and symlinks are
// fully resolved inline by the pre-processor and never reach this
// stage.
func (bp *BackupPipeline) Run(ctx context.Context, entries <-chan ScanEntry, filesetID int64) error {
	if bp.Reporter == nil {
		bp.Reporter = progress.NopReporter{}
	}
	concurrency := bp.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	bp.PreProcessor.OnNewBlocklist = bp.addBlocklist

	primary := make(chan fileResult, concurrency)
	// retry carries results flagged retryable (e.g. a file briefly
	// locked by another process) back through the loop once, read
	// alongside primary by a single ReadFromEither select so such a
	// result is never lost racing against the primary stream draining.
	// A result read back from retry is counted as failed; the file is
	// not processed a second time.
	retry := make(chan fileResult, concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	go func() {
		for entry := range entries {
			sem <- struct{}{}
			wg.Add(1)
			go func(e ScanEntry) {
				defer wg.Done()
				defer func() { <-sem }()
				bp.processOne(ctx, e, filesetID, primary)
			}(entry)
		}
		wg.Wait()
		close(primary)
	}()

	var processed, failed int64
	primaryOpen := true
	for primaryOpen || len(retry) > 0 {
		res, ok, err := ReadFromEither(ctx, primary, retry)
		if err != nil {
			return err
		}
		if !ok {
			primaryOpen = false
			continue
		}

		if res.err != nil {
			if res.retryable {
				res.retryable = false
				select {
				case retry <- res:
					continue
				default:
				}
			}
			failed++
			continue
		}

		if err := bp.link(ctx, filesetID, res); err != nil {
			return fmt.Errorf("pipeline: link file: %w", err)
		}
		processed++
		bp.Reporter.Report("backup: files", processed, processed+failed)
	}

	if err := bp.VolumeMgr.Flush(ctx); err != nil {
		return err
	}
	return bp.uploadFilesAndIndex(ctx, filesetID)
}

func (bp *BackupPipeline) processOne(ctx context.Context, entry ScanEntry, filesetID int64, out chan<- fileResult) {
	pre, fe, err := bp.PreProcessor.Process(ctx, entry, filesetID)
	if err != nil {
		out <- fileResult{err: err, retryable: true}
		return
	}
	if fe != nil {
		// Folder or symlink: fully handled and linked already; just
		// record its file-list entry.
		bp.addFileEntry(*fe)
		return
	}
	if pre == nil {
		// Ignored symlink.
		return
	}

	name := baseName(entry.Path)
	timeOnly := bp.Options.CheckFiletimeOnly

	if !bp.Options.DisableFiletimeCheck && pre.Unchanged(timeOnly) {
		out <- fileResult{entry: entry, prefixID: pre.PathPrefixID, name: name, oldFileID: pre.OldFileID,
			blocksetID: pre.ContentBlocksetID, reused: true, lastModified: entry.ModTime,
			hash: pre.OldHash, metaHash: pre.OldMetaHash, metaSize: pre.OldMetaSize}
		return
	}

	if entry.Open == nil {
		out <- fileResult{err: fmt.Errorf("pipeline: entry %s has no content reader", entry.Path)}
		return
	}
	r, err := entry.Open()
	if err != nil {
		out <- fileResult{err: fmt.Errorf("open %s: %w", entry.Path, err), retryable: true}
		return
	}
	defer r.Close()

	sr, err := bp.Splitter.Split(ctx, r)
	if err != nil {
		out <- fileResult{err: fmt.Errorf("split %s: %w", entry.Path, err), retryable: true}
		return
	}
	bp.addBlocklists(sr.NewBlocklists)

	metadataID, metaHash, metaSize, newBlocklist, err := bp.PreProcessor.StoreMetadata(ctx, map[string]string{
		"CoreLastWritetime": entry.ModTime.UTC().String(),
	})
	if err != nil {
		out <- fileResult{err: fmt.Errorf("store metadata for %s: %w", entry.Path, err), retryable: true}
		return
	}
	if newBlocklist != nil {
		bp.addBlocklist(*newBlocklist)
	}

	out <- fileResult{entry: entry, prefixID: pre.PathPrefixID, name: name, blocksetID: sr.BlocksetID,
		metadataID: metadataID, lastModified: entry.ModTime,
		hash: sr.Hash, metaHash: metaHash, metaSize: metaSize}
}

func (bp *BackupPipeline) link(ctx context.Context, filesetID int64, res fileResult) error {
	var blocklistHashes []string
	err := bp.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fileID := res.oldFileID
		if !res.reused {
			id, err := tx.UpsertFileLookup(ctx, &model.FileLookup{
				PathPrefixID: res.prefixID, Name: res.name,
				BlocksetID: res.blocksetID, MetadataID: res.metadataID,
			})
			if err != nil {
				return fmt.Errorf("upsert file lookup: %w", err)
			}
			fileID = id
		}
		if err := tx.AddFilesetEntry(ctx, &model.FilesetEntry{
			FilesetID: filesetID, FileID: fileID, LastModified: res.lastModified,
		}); err != nil {
			return fmt.Errorf("add fileset entry: %w", err)
		}

		hashes, err := tx.ListBlocklistHashes(ctx, res.blocksetID)
		if err != nil {
			return fmt.Errorf("list blocklist hashes: %w", err)
		}
		blocklistHashes = make([]string, len(hashes))
		for i, h := range hashes {
			blocklistHashes[i] = h.Hash
		}
		return nil
	})
	if err != nil {
		return err
	}

	bp.addFileEntry(volume.FileEntry{
		Type: model.EntryFile, Path: res.entry.Path, Time: res.lastModified, Size: res.entry.Size,
		Hash: res.hash, BlocklistHashes: blocklistHashes,
		MetaHash: res.metaHash, MetaSize: res.metaSize,
	})
	return nil
}

// uploadFilesAndIndex assembles this run's Files volume (every scanned
// path's FileEntry) and Index volume (every block volume flushed, plus
// every blocklist newly registered), uploads both, and records them as
// RemoteVolume/IndexBlockLink rows the same way VolumeManager already
// does for block volumes.
func (bp *BackupPipeline) uploadFilesAndIndex(ctx context.Context, filesetID int64) error {
	filesWriter := volume.NewFileListVolumeWriter(bp.Options.FullBackup)
	bp.mu.Lock()
	for _, fe := range bp.fileEntries {
		filesWriter.AddEntry(fe)
	}
	bp.mu.Unlock()

	var filesBody bytes.Buffer
	if err := filesWriter.WriteTo(&filesBody); err != nil {
		return fmt.Errorf("write files volume: %w", err)
	}
	filesName := remote.Generate(remote.Descriptor{
		Type: model.VolumeTypeFiles, GUID: idgen.VolumeGUID(),
		Compression: bp.Options.CompressionModule, Encryption: bp.Options.EncryptionModule,
	})

	indexWriter := volume.NewIndexVolumeWriter()
	for _, iv := range bp.VolumeMgr.IndexedVolumes() {
		indexWriter.AddVolume(iv)
	}
	bp.mu.Lock()
	for _, bl := range bp.blocklists {
		indexWriter.AddBlocklist(bl)
	}
	bp.mu.Unlock()

	var indexBody bytes.Buffer
	if err := indexWriter.WriteTo(&indexBody); err != nil {
		return fmt.Errorf("write index volume: %w", err)
	}
	indexName := remote.Generate(remote.Descriptor{
		Type: model.VolumeTypeIndex, GUID: idgen.VolumeGUID(),
		Compression: bp.Options.CompressionModule, Encryption: bp.Options.EncryptionModule,
	})

	filesVolID, err := bp.uploadVolume(ctx, filesName, model.VolumeTypeFiles, filesBody.Bytes())
	if err != nil {
		return fmt.Errorf("upload files volume: %w", err)
	}
	indexVolID, err := bp.uploadVolume(ctx, indexName, model.VolumeTypeIndex, indexBody.Bytes())
	if err != nil {
		return fmt.Errorf("upload index volume: %w", err)
	}

	return bp.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.SetFilesetVolume(ctx, filesetID, filesVolID); err != nil {
			return fmt.Errorf("set fileset volume: %w", err)
		}
		for _, iv := range bp.VolumeMgr.IndexedVolumes() {
			rv, err := tx.GetRemoteVolumeByName(ctx, iv.Filename)
			if err != nil {
				return fmt.Errorf("resolve block volume %s: %w", iv.Filename, err)
			}
			if err := tx.LinkIndexVolume(ctx, &model.IndexBlockLink{
				IndexVolumeID: indexVolID, BlockVolumeID: rv.ID,
			}); err != nil {
				return fmt.Errorf("link block volume %s: %w", iv.Filename, err)
			}
		}
		return nil
	})
}

// uploadVolume registers, uploads, and marks Uploaded a single
// self-contained (non-block) volume, the same three-step state
// transition VolumeManager.flush uses for block volumes.
func (bp *BackupPipeline) uploadVolume(ctx context.Context, name string, vt model.VolumeType, body []byte) (int64, error) {
	var volID int64
	err := bp.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		id, err := tx.InsertRemoteVolume(ctx, &model.RemoteVolume{
			Name: name, Type: vt, State: model.VolumeStateUploading,
			DeleteGracePeriod: bp.Options.DeleteGracePeriod,
		})
		if err != nil {
			return err
		}
		volID = id
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reserve volume %s: %w", name, err)
	}

	if err := bp.Backend.Put(ctx, name, bytes.NewReader(body)); err != nil {
		return 0, fmt.Errorf("put volume %s: %w", name, err)
	}

	err = bp.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetVolumeState(ctx, volID, model.VolumeStateUploaded)
	})
	if err != nil {
		return 0, fmt.Errorf("mark volume %s uploaded: %w", name, err)
	}
	return volID, nil
}

func baseName(p string) string {
	_, name := splitEntryPath(p)
	return name
}
