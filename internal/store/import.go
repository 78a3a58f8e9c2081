package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rshade/biochar-corc/internal/aggregate"
)

// Import writes every record of ds in one transaction. Existing rows with the
// same ID are replaced.
func (s *Store) Import(ctx context.Context, ds aggregate.Dataset) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, f := range ds.Facilities {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO facilities (id, name, baseline_type, baseline_carbon_storage_tco2e,
				infrastructure_emissions_kg_co2e, amortization_years, dluc_kg_co2e_per_year)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, string(f.BaselineType), f.BaselineCarbonStorageTCO2e,
			f.InfrastructureEmissionsKgCO2e, f.AmortizationYears, f.DLUCKgCO2ePerYear); err != nil {
			return fmt.Errorf("facility %q: %w", f.ID, err)
		}
	}
	for _, p := range ds.Periods {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO monitoring_periods (id, facility_id, start_at, end_at)
			VALUES (?, ?, ?, ?)`,
			p.ID, p.FacilityID, formatTime(p.Start), formatTime(p.End)); err != nil {
			return fmt.Errorf("monitoring period %q: %w", p.ID, err)
		}
	}
	for _, b := range ds.Batches {
		var completed sql.NullString
		if !b.CompletedAt.IsZero() {
			completed = sql.NullString{String: formatTime(b.CompletedAt), Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO production_batches (id, period_id, completed_at, dry_mass_tonnes,
				organic_carbon_percent, hydrogen_percent, stack_ch4_kg, stack_n2o_kg, fossil_co2_kg,
				materials_kg_co2e, waste_kg_co2e, maintenance_kg_co2e)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.PeriodID, completed, b.DryMassTonnes, b.OrganicCarbonPercent, b.HydrogenPercent,
			b.StackCH4Kg, b.StackN2OKg, b.FossilCO2Kg, b.MaterialsKgCO2e, b.WasteKgCO2e,
			b.MaintenanceKgCO2e); err != nil {
			return fmt.Errorf("batch %q: %w", b.ID, err)
		}
	}
	for _, t := range ds.LabTests {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO lab_tests (id, batch_id, tested_at, organic_carbon_percent, hydrogen_percent)
			VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.BatchID, formatTime(t.TestedAt), t.OrganicCarbonPercent, t.HydrogenPercent); err != nil {
			return fmt.Errorf("lab test %q: %w", t.ID, err)
		}
	}
	for _, a := range ds.Allocations {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO feedstock_allocations (id, period_id, feedstock_type, mass_tonnes,
				transport_distance_km, cultivation_kg_co2e, collection_kg_co2e, preprocessing_kg_co2e)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.PeriodID, a.FeedstockType, a.MassTonnes, a.TransportDistanceKm,
			a.CultivationKgCO2e, a.CollectionKgCO2e, a.PreprocessingKgCO2e); err != nil {
			return fmt.Errorf("feedstock allocation %q: %w", a.ID, err)
		}
	}
	for _, e := range ds.Energy {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO energy_usage (id, period_id, energy_type, quantity)
			VALUES (?, ?, ?, ?)`,
			e.ID, e.PeriodID, e.EnergyType, e.Quantity); err != nil {
			return fmt.Errorf("energy record %q: %w", e.ID, err)
		}
	}
	for _, l := range ds.Leakage {
		eco, mkt := l.Leakage.EcologicalLeakage, l.Leakage.MarketActivityLeakage
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO leakage_assessments (id, period_id, assessed_at, facility_kg_co2e,
				biomass_sourcing_kg_co2e, afolu_kg_co2e, energy_material_kg_co2e, iluc_kg_co2e)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.PeriodID, formatTime(l.AssessedAt), eco.Facility, eco.BiomassSourcing,
			mkt.AFOLU, mkt.EnergyMaterial, mkt.ILUC); err != nil {
			return fmt.Errorf("leakage assessment %q: %w", l.ID, err)
		}
	}
	for _, ev := range ds.Sequestrations {
		var temp sql.NullFloat64
		if ev.MeanSoilTempC != nil {
			temp = sql.NullFloat64{Float64: *ev.MeanSoilTempC, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO sequestration_events (id, period_id, applied_at, mean_soil_temp_c,
				transport_kg_co2e, packaging_kg_co2e, incorporation_kg_co2e)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.PeriodID, formatTime(ev.AppliedAt), temp, ev.TransportKgCO2e,
			ev.PackagingKgCO2e, ev.IncorporationKgCO2e); err != nil {
			return fmt.Errorf("sequestration event %q: %w", ev.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	s.logger.Info().
		Int("periods", len(ds.Periods)).
		Int("facilities", len(ds.Facilities)).
		Int("batches", len(ds.Batches)).
		Msg("dataset imported")
	return nil
}
