package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/biochar-corc/internal/corc"
)

// ErrNoCompletedBatches is returned when a period has no completed production.
var ErrNoCompletedBatches = errors.New("monitoring period has no completed batches")

// Aggregator builds calculation inputs from a Source.
type Aggregator struct {
	source  Source
	factors EmissionFactors
	logger  zerolog.Logger
}

// NewAggregator returns an aggregator reading from source.
func NewAggregator(source Source, factors EmissionFactors, logger zerolog.Logger) *Aggregator {
	return &Aggregator{source: source, factors: factors, logger: logger}
}

// Source returns the record store the aggregator reads from.
func (a *Aggregator) Source() Source {
	return a.source
}

// records is everything Assemble reads for one period.
type records struct {
	period      MonitoringPeriod
	facility    Facility
	batches     []ProductionBatch
	labTests    map[string]LabTest
	allocations []FeedstockAllocation
	energy      []EnergyUsage
	leakage     LeakageAssessment
	hasLeakage  bool
	events      []SequestrationEvent
}

// Assemble reads every record of a monitoring period and folds it into a
// CalculationInput. Queries run concurrently; the first failure cancels the rest.
func (a *Aggregator) Assemble(ctx context.Context, periodID string) (corc.CalculationInput, error) {
	period, err := a.source.MonitoringPeriod(ctx, periodID)
	if err != nil {
		return corc.CalculationInput{}, fmt.Errorf("monitoring period %q: %w", periodID, err)
	}

	recs := records{period: period}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		f, err := a.source.Facility(gctx, period.FacilityID)
		if err != nil {
			return fmt.Errorf("facility %q: %w", period.FacilityID, err)
		}
		recs.facility = f
		return nil
	})
	g.Go(func() error {
		batches, err := a.source.CompletedBatches(gctx, periodID)
		if err != nil {
			return fmt.Errorf("completed batches: %w", err)
		}
		ids := make([]string, len(batches))
		for i, b := range batches {
			ids[i] = b.ID
		}
		tests, err := a.source.LatestLabTests(gctx, ids)
		if err != nil {
			return fmt.Errorf("lab tests: %w", err)
		}
		recs.batches, recs.labTests = batches, tests
		return nil
	})
	g.Go(func() error {
		allocs, err := a.source.FeedstockAllocations(gctx, periodID)
		if err != nil {
			return fmt.Errorf("feedstock allocations: %w", err)
		}
		recs.allocations = allocs
		return nil
	})
	g.Go(func() error {
		usage, err := a.source.EnergyUsage(gctx, periodID)
		if err != nil {
			return fmt.Errorf("energy usage: %w", err)
		}
		recs.energy = usage
		return nil
	})
	g.Go(func() error {
		la, ok, err := a.source.LatestLeakageAssessment(gctx, periodID)
		if err != nil {
			return fmt.Errorf("leakage assessment: %w", err)
		}
		recs.leakage, recs.hasLeakage = la, ok
		return nil
	})
	g.Go(func() error {
		events, err := a.source.SequestrationEvents(gctx, periodID)
		if err != nil {
			return fmt.Errorf("sequestration events: %w", err)
		}
		recs.events = events
		return nil
	})

	if err := g.Wait(); err != nil {
		return corc.CalculationInput{}, fmt.Errorf("monitoring period %q: %w", periodID, err)
	}

	in, err := a.fold(recs)
	if err != nil {
		return corc.CalculationInput{}, fmt.Errorf("monitoring period %q: %w", periodID, err)
	}

	a.logger.Debug().
		Str("period_id", periodID).
		Str("facility_id", period.FacilityID).
		Int("batches", len(recs.batches)).
		Int("lab_tests", len(recs.labTests)).
		Int("energy_records", len(recs.energy)).
		Int("sequestration_events", len(recs.events)).
		Bool("has_leakage_assessment", recs.hasLeakage).
		Float64("dry_mass_tonnes", in.BiocharDryMassTonnes).
		Msg("assembled calculation input")

	return in, nil
}

func (a *Aggregator) fold(r records) (corc.CalculationInput, error) {
	if len(r.batches) == 0 {
		return corc.CalculationInput{}, ErrNoCompletedBatches
	}

	baseline, err := corc.ParseBaselineType(string(r.facility.BaselineType))
	if err != nil {
		return corc.CalculationInput{}, fmt.Errorf("facility %q: %w", r.facility.ID, err)
	}

	in := corc.CalculationInput{
		BaselineType:               baseline,
		BaselineCarbonStorageTCO2e: r.facility.BaselineCarbonStorageTCO2e,
	}

	in.BiocharDryMassTonnes, in.OrganicCarbonPercent, in.HydrogenPercent = composition(r.batches, r.labTests)

	prod := &in.ProjectEmissions.ProductionEmissions
	for _, b := range r.batches {
		prod.StackCH4Kg += b.StackCH4Kg
		prod.StackN2OKg += b.StackN2OKg
		prod.FossilCO2Kg += b.FossilCO2Kg
		prod.Materials += b.MaterialsKgCO2e
		prod.Waste += b.WasteKgCO2e
		prod.Maintenance += b.MaintenanceKgCO2e
	}
	for _, u := range r.energy {
		factor, err := a.factors.EnergyFactor(u.EnergyType)
		if err != nil {
			return corc.CalculationInput{}, fmt.Errorf("energy record %q: %w", u.ID, err)
		}
		prod.Energy += u.Quantity * factor
	}

	bio := &in.ProjectEmissions.BiomassEmissions
	for _, al := range r.allocations {
		bio.Cultivation += al.CultivationKgCO2e
		bio.Collection += al.CollectionKgCO2e
		bio.Preprocessing += al.PreprocessingKgCO2e
		bio.Transport += al.MassTonnes * al.TransportDistanceKm * a.factors.TransportKgCO2ePerTonneKm
	}

	in.ProjectEmissions.EmbodiedEmissions = a.embodied(r.facility, r.period)

	end := &in.ProjectEmissions.EndUseEmissions
	var tempSum float64
	var tempCount int
	for _, ev := range r.events {
		end.Transport += ev.TransportKgCO2e
		end.Packaging += ev.PackagingKgCO2e
		end.Incorporation += ev.IncorporationKgCO2e
		if ev.MeanSoilTempC != nil {
			tempSum += *ev.MeanSoilTempC
			tempCount++
		}
	}
	in.MeanSoilTempC = corc.DefaultSoilTempC
	if tempCount > 0 {
		in.MeanSoilTempC = tempSum / float64(tempCount)
	}

	if r.hasLeakage {
		in.LeakageEmissions = r.leakage.Leakage
	} else {
		a.logger.Info().
			Str("period_id", r.period.ID).
			Msg("no leakage assessment, leakage counted as zero")
	}

	return in, nil
}

// composition returns total dry mass and the mass-weighted carbon and
// hydrogen percentages. A lab test overrides the batch defaults. When every
// batch weighs zero the percentages are simple means.
func composition(batches []ProductionBatch, tests map[string]LabTest) (mass, carbon, hydrogen float64) {
	var cSum, hSum, cMean, hMean float64
	for _, b := range batches {
		c, h := b.OrganicCarbonPercent, b.HydrogenPercent
		if t, ok := tests[b.ID]; ok {
			c, h = t.OrganicCarbonPercent, t.HydrogenPercent
		}
		mass += b.DryMassTonnes
		cSum += b.DryMassTonnes * c
		hSum += b.DryMassTonnes * h
		cMean += c
		hMean += h
	}
	if mass > 0 {
		return mass, cSum / mass, hSum / mass
	}
	n := float64(len(batches))
	return mass, cMean / n, hMean / n
}

// embodied amortizes infrastructure over the facility lifetime and scales
// annual dLUC to the period length.
func (a *Aggregator) embodied(f Facility, p MonitoringPeriod) corc.EmbodiedEmissions {
	years := p.Years()
	if years < 0 {
		years = 0
	}

	infra := f.InfrastructureEmissionsKgCO2e
	if f.AmortizationYears > 0 {
		infra = infra / f.AmortizationYears * years
	} else if infra > 0 {
		a.logger.Warn().
			Str("facility_id", f.ID).
			Float64("infrastructure_kg_co2e", infra).
			Msg("facility has no amortization lifetime, charging full infrastructure emissions")
	}

	return corc.EmbodiedEmissions{
		Infrastructure: infra,
		DLUC:           f.DLUCKgCO2ePerYear * years,
	}
}
