package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List filesets recorded in the index database",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	filesets, err := db.ListFilesets(ctx)
	if err != nil {
		return fmt.Errorf("list filesets: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(filesets)
	}

	rows := make([][]string, 0, len(filesets))
	for _, fs := range filesets {
		entries, err := db.ListFilesetEntries(ctx, fs.ID)
		if err != nil {
			return fmt.Errorf("list entries for fileset %d: %w", fs.ID, err)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", fs.ID),
			fs.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%v", fs.IsFullBackup),
			fmt.Sprintf("%d", len(entries)),
		})
	}

	// Piped/scripted output (the CLI's scriptable surface) stays plain
	// tab-separated text; an interactive terminal gets the bordered,
	// colored table the rest of the operator-facing commands don't
	// otherwise use.
	if !ui.IsTerminal() {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIMESTAMP\tFULL\tFILES")
		for _, row := range rows {
			fmt.Fprintln(tw, row[0]+"\t"+row[1]+"\t"+row[2]+"\t"+row[3])
		}
		return tw.Flush()
	}

	t := ui.NewSearchTable(ui.GetWidth()).
		Headers("ID", "TIMESTAMP", "FULL", "FILES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return ui.TableHeaderStyle
			}
			return lipgloss.NewStyle()
		})
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
