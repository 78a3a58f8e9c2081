package main

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
	"github.com/rshade/biochar-corc/internal/report"
)

func newPeriodCommand(o *rootOptions) *cobra.Command {
	var (
		src    sourceFlags
		output string
		update bool
	)

	cmd := &cobra.Command{
		Use:   "period <monitoring-period-id>",
		Short: "Assemble a monitoring period from stored records and quantify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			source, closeSource, err := src.open(ctx, o)
			defer closeSource()
			if err != nil {
				return err
			}
			calc, err := o.cfg.NewCalculator(o.logger)
			if err != nil {
				return err
			}

			agg := aggregate.NewAggregator(source, o.cfg.EmissionFactors, o.logger)
			in, err := agg.Assemble(ctx, args[0])
			if err != nil {
				return err
			}
			q := calc.Quantify(in)

			if update {
				u, err := report.NewMonitoringPeriodUpdate(args[0], q, calc.Methodology().Name, time.Now())
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(u, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode update: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			if err := writeQuantification(cmd.OutOrStdout(), output, args[0], q); err != nil {
				return err
			}
			if q.Kind == corc.KindFailed {
				return q.Cause
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json)")
	cmd.Flags().BoolVar(&update, "update", false, "print the monitoring-period update record as JSON")
	return cmd
}
