package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/lucasjlepore/fitsync/ledger"
)

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.LedgerPath == "" {
				return errors.New("run history is disabled (ledger.path is empty)")
			}
			store, err := openLedger(a.cfg.LedgerPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(a.stdout, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printHistory(w io.Writer, runs []ledger.Entry) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No sync runs recorded")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Started", "Outcome", "Source", "Backup", "Run"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for _, r := range runs {
		data = append(data, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Outcome,
			baseOrDash(r.SourcePath),
			baseOrDash(r.BackupPath),
			r.RunID,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func baseOrDash(path string) string {
	if path == "" {
		return "-"
	}
	return filepath.Base(path)
}
