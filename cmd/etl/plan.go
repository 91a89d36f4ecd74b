package main

import (
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/argo-profile-etl/internal/batch"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newPlanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show how the source files split into batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := batch.Discover(a.cfg.SourceDir, a.cfg.SourcePattern)
			if err != nil {
				return err
			}
			batches := batch.Plan(files, a.cfg.BatchCount)

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Batch", "Files", "First", "Last"})
			for _, id := range batch.IDs(batches) {
				b := batches[id]
				first, last := "-", "-"
				if len(b) > 0 {
					first, last = filepath.Base(b[0]), filepath.Base(b[len(b)-1])
				}
				tw.AppendRow(table.Row{id, humanize.Comma(int64(len(b))), first, last})
			}
			tw.AppendFooter(table.Row{"total", humanize.Comma(int64(len(files))), "", ""})
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 1, Align: text.AlignRight},
				{Number: 2, Align: text.AlignRight},
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d files in %d batches\n", a.cfg.SourceDir, len(files), len(batches))
			fmt.Fprintln(out, tw.Render())
			return nil
		},
	}
}
