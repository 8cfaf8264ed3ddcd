package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/apperr"
	"github.com/blockvault/blockvault/internal/config"
	"github.com/blockvault/blockvault/internal/logging"
	"github.com/blockvault/blockvault/internal/remote"
	"github.com/blockvault/blockvault/internal/remote/fsremote"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/storage/sqlite"
)

var (
	flagDBPath    string
	flagRemoteURL string
	flagDebug     bool
	flagJSON      bool

	cliOpts config.Options
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "blockvault",
	Short:         "A deduplicating, content-addressed backup engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagDBPath != "" {
			opts.DatabasePath = flagDBPath
		}
		if flagRemoteURL != "" {
			opts.RemoteURL = flagRemoteURL
		}
		if flagDebug {
			opts.Debug = true
		}
		cliOpts = opts

		logger = logging.Init(logging.Options{
			FilePath: cliOpts.LogFilePath,
			Debug:    cliOpts.Debug,
			Console:  cliOpts.Debug,
		})
		return nil
	},
}

// Execute runs the root command, printing a one-line message for
// apperr.KindUser failures and the full error chain otherwise.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if apperr.Is(err, apperr.KindUser) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "blockvault: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "path to the local index database (default: from config)")
	rootCmd.PersistentFlags().StringVar(&flagRemoteURL, "remote", "", "remote target URL (default: from config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")
}

// openStorage opens the index database named by the resolved config,
// acquiring the single-writer lock for the lifetime of the command.
func openStorage(cmd *cobra.Command) (*sqlite.DB, error) {
	ctx := cmd.Context()
	db, err := sqlite.Open(ctx, cliOpts.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	return db, nil
}

// openBackend resolves cliOpts.RemoteURL into a concrete remote.Backend.
// Only the local-directory scheme is implemented; every other scheme is
// a user-facing configuration mistake.
func openBackend() (remote.Backend, error) {
	if cliOpts.RemoteURL == "" {
		return nil, apperr.User("no remote configured (set --remote or remote-url in config)")
	}
	dir := cliOpts.RemoteURL
	if scheme, rest, ok := strings.Cut(cliOpts.RemoteURL, "://"); ok {
		if scheme != "file" {
			return nil, apperr.User("unsupported remote scheme %q (only file:// is implemented)", scheme)
		}
		dir = rest
	}
	return fsremote.New(dir)
}

var _ storage.Storage = (*sqlite.DB)(nil)
