package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/purge"
)

var flagPurgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Find remote volumes missing outside the normal delete flow and the filesets they break",
	Args:  cobra.NoArgs,
	RunE:  runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&flagPurgeYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	backend, err := openBackend()
	if err != nil {
		return err
	}

	report, err := purge.Scan(ctx, db, backend)
	if err != nil {
		return fmt.Errorf("scan for missing volumes: %w", err)
	}

	if len(report.MissingVolumes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no registered volumes missing from the remote")
		return nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "## Missing volumes\n\n%d volume(s) registered locally are absent from the remote:\n\n", len(report.MissingVolumes))
	for _, v := range report.MissingVolumes {
		fmt.Fprintf(&out, "- %s\n", v.Name)
	}
	if len(report.Broken) == 0 {
		fmt.Fprintln(&out, "\nno fileset depends on their blocks")
	} else {
		fmt.Fprintf(&out, "\n%d fileset(s) can no longer be restored in full:\n\n", len(report.Broken))
		for _, bf := range report.Broken {
			fmt.Fprintf(&out, "- fileset %d (%s): %d missing block(s)\n", bf.FilesetID, bf.Timestamp.Format("2006-01-02T15:04:05Z07:00"), bf.MissingBlocks)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(out.String()))

	if !flagPurgeYes && !confirm(fmt.Sprintf("Mark %d volume(s) as missing (deletable once their grace period elapses)?", len(report.MissingVolumes))) {
		fmt.Fprintln(cmd.OutOrStdout(), "aborted")
		return nil
	}

	if err := purge.MarkMissing(ctx, db, report, consoleReporter{}); err != nil {
		return fmt.Errorf("mark volumes missing: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "marked %d volume(s) missing\n", len(report.MissingVolumes))
	return nil
}
