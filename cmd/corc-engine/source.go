package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/store"
)

var errNoSource = errors.New("no data source: set --db or --dataset (or data.dbPath / data.dataset in the config)")

// sourceFlags selects where monitoring-period records are read from.
type sourceFlags struct {
	dbPath  string
	dataset string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database with monitoring-period records")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "JSON or YAML dataset with monitoring-period records")
}

// open resolves the flags against the config and opens the source. The
// returned close function is never nil.
func (f *sourceFlags) open(ctx context.Context, o *rootOptions) (aggregate.Source, func(), error) {
	dbPath, dataset := f.dbPath, f.dataset
	if dbPath == "" && dataset == "" {
		dbPath, dataset = o.cfg.Data.DBPath, o.cfg.Data.Dataset
	}

	switch {
	case dbPath != "":
		s, err := store.Open(ctx, dbPath, o.logger)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				o.logger.Error().Err(err).Msg("failed to close database")
			}
		}, nil
	case dataset != "":
		ds, err := aggregate.LoadDataset(dataset)
		if err != nil {
			return nil, func() {}, err
		}
		return aggregate.NewMemorySource(ds), func() {}, nil
	}
	return nil, func() {}, errNoSource
}
