// Package batch recomputes CORCs for many monitoring periods in parallel.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
	"github.com/rshade/biochar-corc/internal/metrics"
)

// Outcome is the recomputation result for one monitoring period. Err is set
// when the period's inputs could not be assembled; otherwise Quantification
// holds the calculation outcome.
type Outcome struct {
	PeriodID       string
	Quantification corc.Quantification
	Err            error
	Elapsed        time.Duration
}

// Runner assembles and quantifies monitoring periods with a bounded number
// of workers.
type Runner struct {
	aggregator *aggregate.Aggregator
	calculator *corc.Calculator
	metrics    *metrics.Metrics
	workers    int
	logger     zerolog.Logger
}

// NewRunner returns a runner. workers <= 0 means one worker per CPU.
// m may be nil.
func NewRunner(agg *aggregate.Aggregator, calc *corc.Calculator, m *metrics.Metrics, workers int, logger zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{aggregator: agg, calculator: calc, metrics: m, workers: workers, logger: logger}
}

// Workers returns the worker limit.
func (r *Runner) Workers() int {
	return r.workers
}

// One assembles and quantifies a single period.
func (r *Runner) One(ctx context.Context, periodID string) Outcome {
	start := time.Now()
	out := Outcome{PeriodID: periodID}

	in, err := r.aggregator.Assemble(ctx, periodID)
	if err != nil {
		out.Err = err
		out.Elapsed = time.Since(start)
		return out
	}

	out.Quantification = r.calculator.Quantify(in)
	out.Elapsed = time.Since(start)
	r.metrics.ObserveQuantification(out.Quantification, out.Elapsed)
	return out
}

// Run recomputes every period in periodIDs. Results are returned in input
// order. Per-period failures are reported in Outcome.Err and do not stop the
// run; only cancellation of ctx does.
func (r *Runner) Run(ctx context.Context, periodIDs []string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(periodIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, id := range periodIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.One(gctx, id)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recomputation interrupted: %w", err)
	}

	var full, estimated, failed int
	for _, o := range outcomes {
		switch {
		case o.Err != nil || o.Quantification.Kind == corc.KindFailed:
			failed++
		case o.Quantification.Kind == corc.KindEstimate:
			estimated++
		default:
			full++
		}
	}
	r.logger.Info().
		Int("periods", len(periodIDs)).
		Int("workers", r.workers).
		Int("full", full).
		Int("estimated", estimated).
		Int("failed", failed).
		Msg("recomputation finished")

	return outcomes, nil
}

// RunAll recomputes every period the aggregator's source knows about.
func (r *Runner) RunAll(ctx context.Context) ([]Outcome, error) {
	ids, err := r.aggregator.Source().MonitoringPeriodIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitoring periods: %w", err)
	}
	return r.Run(ctx, ids)
}
