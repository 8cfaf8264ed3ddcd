package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/pipeline"
	"github.com/blockvault/blockvault/internal/progress"
	"github.com/blockvault/blockvault/internal/storage"
)

var flagFullBackup bool

var backupCmd = &cobra.Command{
	Use:   "backup <source-dir>",
	Short: "Scan a directory and store a new fileset",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&flagFullBackup, "full", false, "mark this run's file listing as a full backup")
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source := args[0]

	db, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	backend, err := openBackend()
	if err != nil {
		return err
	}

	reg := buildRegistry()
	opts := pipelineOptions(flagFullBackup)

	filesetID, err := createPlaceholderFileset(ctx, db)
	if err != nil {
		return fmt.Errorf("create fileset: %w", err)
	}

	vm := pipeline.NewVolumeManager(db, backend, reg, opts)
	splitter := &pipeline.StreamBlockSplitter{Storage: db, Writer: vm, Options: opts}
	pre := &pipeline.MetadataPreProcessor{Storage: db, Splitter: splitter, Options: opts}
	concurrency := cliOpts.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	bp := &pipeline.BackupPipeline{
		Storage: db, Backend: backend, PreProcessor: pre, Splitter: splitter,
		VolumeMgr: vm, Options: opts, Concurrency: concurrency,
		Reporter: consoleReporter{},
	}

	entries := make(chan pipeline.ScanEntry, 64)
	walkErrCh := make(chan error, 1)
	go func() {
		walkErrCh <- walkSource(source, entries)
	}()

	if err := bp.Run(ctx, entries, filesetID); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if err := <-walkErrCh; err != nil {
		return fmt.Errorf("scan %s: %w", source, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "backup complete: fileset %d\n", filesetID)
	return nil
}

// createPlaceholderFileset inserts a Fileset row pointing at a
// placeholder volume row (typed Index, state Temporary), matching the
// convention the pipeline tests use: a fileset must reference some
// volume before AddFilesetEntry can
// target it, but the real Files volume is only known once Run has
// uploaded it at the end -- uploadFilesAndIndex repoints VolumeID at
// that point.
func createPlaceholderFileset(ctx context.Context, db storage.Storage) (int64, error) {
	var filesetID int64
	err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
		volID, err := tx.InsertRemoteVolume(ctx, &model.RemoteVolume{
			Name: fmt.Sprintf("pending-%d.dindex", time.Now().UnixNano()),
			Type: model.VolumeTypeIndex, State: model.VolumeStateTemporary,
			DeleteGracePeriod: cliOpts.DeleteGracePeriod,
		})
		if err != nil {
			return err
		}
		id, err := tx.InsertFileset(ctx, &model.Fileset{
			Timestamp: time.Now().UTC(), VolumeID: volID, IsFullBackup: flagFullBackup,
		})
		if err != nil {
			return err
		}
		filesetID = id
		return nil
	})
	return filesetID, err
}

// walkSource walks source, emitting a ScanEntry per file, folder, and
// symlink encountered, and closes entries once the walk completes.
func walkSource(source string, entries chan<- pipeline.ScanEntry) error {
	defer close(entries)
	return filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == source {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			entries <- pipeline.ScanEntry{Path: p, Type: model.EntrySymlink, ModTime: info.ModTime(), SymlinkTarget: target}

		case d.IsDir():
			entries <- pipeline.ScanEntry{Path: p, Type: model.EntryFolder, ModTime: info.ModTime()}

		default:
			entries <- pipeline.ScanEntry{
				Path: p, Type: model.EntryFile, ModTime: info.ModTime(), Size: info.Size(),
				Open: func() (io.ReadCloser, error) { return os.Open(p) },
			}
		}
		return nil
	})
}

// consoleReporter prints progress to stderr, replacing itself on the
// same line rather than scrolling.
type consoleReporter struct{}

func (consoleReporter) Report(phase string, done, total int64) {
	fmt.Fprintf(os.Stderr, "\r%s: %d/%d", phase, done, total)
	if total > 0 && done >= total {
		fmt.Fprintln(os.Stderr)
	}
}

var _ progress.Reporter = consoleReporter{}
