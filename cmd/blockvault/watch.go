package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var flagDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <source-dir>",
	Short: "Watch a directory and trigger a backup on every debounced change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 5*time.Second, "quiet period after the last change before a backup runs")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	source := args[0]

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := filepath.WalkDir(source, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if werr := watcher.Add(p); werr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to watch %s: %v\n", p, werr)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("watch %s: %w", source, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (debounce %s)\n", source, flagDebounce)

	var timer *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(flagDebounce, func() { trigger <- struct{}{} })
			} else {
				timer.Reset(flagDebounce)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", werr)

		case <-trigger:
			fmt.Fprintf(cmd.OutOrStdout(), "change detected, backing up %s\n", source)
			if err := runBackup(cmd, []string{source}); err != nil {
				fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
			}

		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}
}
