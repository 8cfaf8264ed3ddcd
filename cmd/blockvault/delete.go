package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/apperr"
	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/retention"
	"github.com/blockvault/blockvault/internal/storage"
	"github.com/blockvault/blockvault/internal/ui"
)

var (
	flagPolicyFile  string
	flagOlderThan   string
	flagKeepVersion int
	flagYes         bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Apply a retention policy, dropping filesets it marks deletable",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&flagPolicyFile, "policy-file", "", "TOML retention policy file (see internal/retention)")
	deleteCmd.Flags().StringVar(&flagOlderThan, "older-than", "", "delete filesets older than this (natural language, e.g. \"30 days ago\")")
	deleteCmd.Flags().IntVar(&flagKeepVersion, "keep-versions", 0, "retain only the N most recent full backups")
	deleteCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

// whenParser resolves natural-language time references in --older-than,
// using olebedev/when's English and common rule sets.
var whenParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	removers, err := buildRemovers()
	if err != nil {
		return err
	}
	if len(removers) == 0 {
		return apperr.User("no retention criteria given (use --policy-file, --older-than, or --keep-versions)")
	}

	filesets, err := db.ListFilesets(ctx)
	if err != nil {
		return fmt.Errorf("list filesets: %w", err)
	}
	byID := make(map[int64]*model.Fileset, len(filesets))
	for _, fs := range filesets {
		byID[fs.ID] = fs
	}

	snapshots := make([]retention.Snapshot, 0, len(filesets))
	for _, fs := range filesets {
		snapshots = append(snapshots, retention.Snapshot{
			FilesetID: fs.ID, Timestamp: fs.Timestamp, IsFullBackup: fs.IsFullBackup,
		})
	}

	deletable := retention.Evaluate(snapshots, removers, false)
	if len(deletable) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no filesets eligible for deletion")
		return nil
	}

	ids := make([]int64, 0, len(deletable))
	for id := range deletable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(cmd.OutOrStdout(), "%d fileset(s) eligible for deletion:\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "  fileset %d (%s)\n", id, byID[id].Timestamp.Format(time.RFC3339))
	}

	if !flagYes && !confirm(fmt.Sprintf("Delete %d fileset(s)?", len(ids))) {
		fmt.Fprintln(cmd.OutOrStdout(), "aborted")
		return nil
	}

	for _, id := range ids {
		if err := db.RunInTransaction(ctx, func(tx storage.Transaction) error {
			return tx.DropFileset(ctx, id)
		}); err != nil {
			return fmt.Errorf("drop fileset %d: %w", id, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d fileset(s)\n", len(ids))
	return nil
}

func buildRemovers() ([]retention.Remover, error) {
	var removers []retention.Remover

	policyFile := flagPolicyFile
	if policyFile == "" {
		policyFile = cliOpts.PolicyFilePath
	}

	if policyFile != "" {
		pf, err := retention.LoadPolicyFile(policyFile)
		if err != nil {
			return nil, err
		}
		fromFile, err := pf.BuildRemovers(time.Now())
		if err != nil {
			return nil, fmt.Errorf("build removers from policy file: %w", err)
		}
		removers = append(removers, fromFile...)
	}

	if flagOlderThan != "" {
		cutoff, err := parseOlderThan(flagOlderThan)
		if err != nil {
			return nil, apperr.User("could not parse --older-than %q: %v", flagOlderThan, err)
		}
		removers = append(removers, retention.KeepTimeRemover{Cutoff: cutoff})
	}

	if flagKeepVersion > 0 {
		removers = append(removers, retention.KeepVersionsRemover{N: flagKeepVersion})
	}

	return removers, nil
}

func parseOlderThan(s string) (time.Time, error) {
	res, err := whenParser.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, err
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("no recognizable time reference in %q", s)
	}
	return res.Time, nil
}

// confirm asks a yes/no question before a destructive action. huh's
// form needs a real terminal to drive its bubbletea program; outside
// one (CI, a piped script) it falls back to ui.PromptYesNo, which
// already knows to default rather than block when stdin isn't
// interactive.
func confirm(prompt string) bool {
	if !ui.IsTerminal() {
		return ui.PromptYesNo(prompt, false)
	}
	var ok bool
	err := huhConfirm(prompt, &ok)
	if err != nil {
		return false
	}
	return ok
}
