package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/batch"
	"github.com/rshade/biochar-corc/internal/report"
)

// recomputeRecord is one line of JSON recompute output.
type recomputeRecord struct {
	PeriodID       string           `json:"periodId"`
	Quantification *report.Document `json:"quantification,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func newRecomputeCommand(o *rootOptions) *cobra.Command {
	var (
		src     sourceFlags
		output  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "recompute [monitoring-period-id...]",
		Short: "Recompute CORCs for many monitoring periods in parallel",
		Long: `Recompute CORCs for the given monitoring periods, or for every period in the
data source when none are given. Results are printed in input order.`,
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

			n := o.cfg.Workers
			if cmd.Flags().Changed("workers") {
				n = workers
			}
			agg := aggregate.NewAggregator(source, o.cfg.EmissionFactors, o.logger)
			runner := batch.NewRunner(agg, calc, nil, n, o.logger)

			var outcomes []batch.Outcome
			if len(args) == 0 {
				outcomes, err = runner.RunAll(ctx)
			} else {
				outcomes, err = runner.Run(ctx, args)
			}
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeOutcomesJSON(cmd.OutOrStdout(), outcomes)
			}
			return writeOutcomesTable(cmd.OutOrStdout(), outcomes)
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel workers (0: one per CPU)")
	return cmd
}

func writeOutcomesTable(w io.Writer, outcomes []batch.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tOUTCOME\tNET tCO2e\tDETAIL")
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\terror\t-\t%v\n", o.PeriodID, o.Err)
			continue
		}
		q := o.Quantification
		net, ok := q.NetTCO2e()
		netText := "-"
		if ok {
			netText = fmt.Sprintf("%.4f", net)
		}
		detail := ""
		switch {
		case q.Cause != nil:
			detail = q.Cause.Error()
		case q.Result != nil && !q.Result.QualityValid:
			detail = "H/Corg above eligibility threshold"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.PeriodID, q.Kind, netText, detail)
	}
	return tw.Flush()
}

func writeOutcomesJSON(w io.Writer, outcomes []batch.Outcome) error {
	enc := json.NewEncoder(w)
	for _, o := range outcomes {
		rec := recomputeRecord{PeriodID: o.PeriodID}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		} else {
			doc := report.NewDocument("", o.Quantification)
			rec.Quantification = &doc
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode outcome for %s: %w", o.PeriodID, err)
		}
	}
	return nil
}
