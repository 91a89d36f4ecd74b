package main

import (
	"fmt"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/argo-profile-etl/internal/batch"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newLoadCommand(a *app) *cobra.Command {
	var dbPath, tableName string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Append converted CSV tables to a SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath != "" {
				a.cfg.SQLitePath = dbPath
			}
			if tableName != "" {
				a.cfg.SQLiteTable = tableName
			}

			files, err := batch.Discover(a.cfg.OutputDir, "*.csv")
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no CSV outputs in %s", a.cfg.OutputDir)
			}

			loader, err := sqlite.Open(a.cfg.SQLitePath, a.cfg.SQLiteTable, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := loader.Close(); err != nil {
					a.logger.Error("close sqlite db", "error", err)
				}
			}()

			s, err := loader.Load(cmd.Context(), files)
			if err != nil {
				return fmt.Errorf("load %s: %w", a.cfg.SQLitePath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s rows from %d files into %s.%s (%d already loaded)\n",
				humanize.Comma(s.Rows), s.Files, a.cfg.SQLitePath, a.cfg.SQLiteTable, s.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides SQLITE_PATH)")
	cmd.Flags().StringVar(&tableName, "table", "", "Target table (overrides SQLITE_TABLE)")
	return cmd
}
