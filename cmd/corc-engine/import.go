package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/store"
)

func newImportCommand(o *rootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import <dataset.json|dataset.yaml>",
		Short: "Load a dataset file into a SQLite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = o.cfg.Data.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no database: set --db or data.dbPath in the config")
			}

			ds, err := aggregate.LoadDataset(args[0])
			if err != nil {
				return err
			}

			s, err := store.Open(cmd.Context(), dbPath, o.logger)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if err := s.Import(cmd.Context(), ds); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d monitoring periods into %s\n", len(ds.Periods), dbPath)
			return err
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to write")
	return cmd
}
