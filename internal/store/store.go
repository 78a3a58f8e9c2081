// Package store is a SQLite-backed aggregate.Source.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
)

const schema = `
CREATE TABLE IF NOT EXISTS facilities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	baseline_type TEXT NOT NULL,
	baseline_carbon_storage_tco2e REAL NOT NULL DEFAULT 0,
	infrastructure_emissions_kg_co2e REAL NOT NULL DEFAULT 0,
	amortization_years REAL NOT NULL DEFAULT 0,
	dluc_kg_co2e_per_year REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS monitoring_periods (
	id TEXT PRIMARY KEY,
	facility_id TEXT NOT NULL,
	start_at TEXT NOT NULL,
	end_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS production_batches (
	id TEXT PRIMARY KEY,
	period_id TEXT NOT NULL,
	completed_at TEXT,
	dry_mass_tonnes REAL NOT NULL,
	organic_carbon_percent REAL NOT NULL,
	hydrogen_percent REAL NOT NULL,
	stack_ch4_kg REAL NOT NULL DEFAULT 0,
	stack_n2o_kg REAL NOT NULL DEFAULT 0,
	fossil_co2_kg REAL NOT NULL DEFAULT 0,
	materials_kg_co2e REAL NOT NULL DEFAULT 0,
	waste_kg_co2e REAL NOT NULL DEFAULT 0,
	maintenance_kg_co2e REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_batches_period ON production_batches(period_id);
CREATE TABLE IF NOT EXISTS lab_tests (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	tested_at TEXT NOT NULL,
	organic_carbon_percent REAL NOT NULL,
	hydrogen_percent REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lab_tests_batch ON lab_tests(batch_id);
CREATE TABLE IF NOT EXISTS feedstock_allocations (
	id TEXT PRIMARY KEY,
	period_id TEXT NOT NULL,
	feedstock_type TEXT NOT NULL DEFAULT '',
	mass_tonnes REAL NOT NULL,
	transport_distance_km REAL NOT NULL DEFAULT 0,
	cultivation_kg_co2e REAL NOT NULL DEFAULT 0,
	collection_kg_co2e REAL NOT NULL DEFAULT 0,
	preprocessing_kg_co2e REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS energy_usage (
	id TEXT PRIMARY KEY,
	period_id TEXT NOT NULL,
	energy_type TEXT NOT NULL,
	quantity REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS leakage_assessments (
	id TEXT PRIMARY KEY,
	period_id TEXT NOT NULL,
	assessed_at TEXT NOT NULL,
	facility_kg_co2e REAL NOT NULL DEFAULT 0,
	biomass_sourcing_kg_co2e REAL NOT NULL DEFAULT 0,
	afolu_kg_co2e REAL NOT NULL DEFAULT 0,
	energy_material_kg_co2e REAL NOT NULL DEFAULT 0,
	iluc_kg_co2e REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS sequestration_events (
	id TEXT PRIMARY KEY,
	period_id TEXT NOT NULL,
	applied_at TEXT NOT NULL,
	mean_soil_temp_c REAL,
	transport_kg_co2e REAL NOT NULL DEFAULT 0,
	packaging_kg_co2e REAL NOT NULL DEFAULT 0,
	incorporation_kg_co2e REAL NOT NULL DEFAULT 0
);
`

// Store reads monitoring-period records from a SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ aggregate.Source = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
// An in-memory database is limited to one connection so every query sees it.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Debug().Str("path", path).Msg("database opened")
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout keeps nanoseconds fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// MonitoringPeriod implements aggregate.Source.
func (s *Store) MonitoringPeriod(ctx context.Context, periodID string) (aggregate.MonitoringPeriod, error) {
	var p aggregate.MonitoringPeriod
	var start, end string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, facility_id, start_at, end_at FROM monitoring_periods WHERE id = ?`, periodID,
	).Scan(&p.ID, &p.FacilityID, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return aggregate.MonitoringPeriod{}, aggregate.ErrNotFound
	}
	if err != nil {
		return aggregate.MonitoringPeriod{}, err
	}
	if p.Start, err = parseTime(start); err != nil {
		return aggregate.MonitoringPeriod{}, err
	}
	if p.End, err = parseTime(end); err != nil {
		return aggregate.MonitoringPeriod{}, err
	}
	return p, nil
}

// MonitoringPeriodIDs implements aggregate.Source.
func (s *Store) MonitoringPeriodIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM monitoring_periods ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Facility implements aggregate.Source.
func (s *Store) Facility(ctx context.Context, facilityID string) (aggregate.Facility, error) {
	var f aggregate.Facility
	var baseline string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, baseline_type, baseline_carbon_storage_tco2e,
		       infrastructure_emissions_kg_co2e, amortization_years, dluc_kg_co2e_per_year
		FROM facilities WHERE id = ?`, facilityID,
	).Scan(&f.ID, &f.Name, &baseline, &f.BaselineCarbonStorageTCO2e,
		&f.InfrastructureEmissionsKgCO2e, &f.AmortizationYears, &f.DLUCKgCO2ePerYear)
	if errors.Is(err, sql.ErrNoRows) {
		return aggregate.Facility{}, aggregate.ErrNotFound
	}
	if err != nil {
		return aggregate.Facility{}, err
	}
	f.BaselineType = corc.BaselineType(baseline)
	return f, nil
}

// CompletedBatches implements aggregate.Source.
func (s *Store) CompletedBatches(ctx context.Context, periodID string) ([]aggregate.ProductionBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_id, completed_at, dry_mass_tonnes, organic_carbon_percent, hydrogen_percent,
		       stack_ch4_kg, stack_n2o_kg, fossil_co2_kg, materials_kg_co2e, waste_kg_co2e, maintenance_kg_co2e
		FROM production_batches
		WHERE period_id = ? AND completed_at IS NOT NULL
		ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []aggregate.ProductionBatch
	for rows.Next() {
		var b aggregate.ProductionBatch
		var completed string
		if err := rows.Scan(&b.ID, &b.PeriodID, &completed, &b.DryMassTonnes, &b.OrganicCarbonPercent,
			&b.HydrogenPercent, &b.StackCH4Kg, &b.StackN2OKg, &b.FossilCO2Kg, &b.MaterialsKgCO2e,
			&b.WasteKgCO2e, &b.MaintenanceKgCO2e); err != nil {
			return nil, err
		}
		if b.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestLabTests implements aggregate.Source.
func (s *Store) LatestLabTests(ctx context.Context, batchIDs []string) (map[string]aggregate.LabTest, error) {
	out := make(map[string]aggregate.LabTest)
	if len(batchIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batchIDs)), ",")
	args := make([]any, len(batchIDs))
	for i, id := range batchIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, tested_at, organic_carbon_percent, hydrogen_percent
		FROM lab_tests WHERE batch_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t aggregate.LabTest
		var tested string
		if err := rows.Scan(&t.ID, &t.BatchID, &tested, &t.OrganicCarbonPercent, &t.HydrogenPercent); err != nil {
			return nil, err
		}
		if t.TestedAt, err = parseTime(tested); err != nil {
			return nil, err
		}
		if cur, ok := out[t.BatchID]; !ok || t.TestedAt.After(cur.TestedAt) {
			out[t.BatchID] = t
		}
	}
	return out, rows.Err()
}

// FeedstockAllocations implements aggregate.Source.
func (s *Store) FeedstockAllocations(ctx context.Context, periodID string) ([]aggregate.FeedstockAllocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_id, feedstock_type, mass_tonnes, transport_distance_km,
		       cultivation_kg_co2e, collection_kg_co2e, preprocessing_kg_co2e
		FROM feedstock_allocations WHERE period_id = ? ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []aggregate.FeedstockAllocation
	for rows.Next() {
		var a aggregate.FeedstockAllocation
		if err := rows.Scan(&a.ID, &a.PeriodID, &a.FeedstockType, &a.MassTonnes, &a.TransportDistanceKm,
			&a.CultivationKgCO2e, &a.CollectionKgCO2e, &a.PreprocessingKgCO2e); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EnergyUsage implements aggregate.Source.
func (s *Store) EnergyUsage(ctx context.Context, periodID string) ([]aggregate.EnergyUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_id, energy_type, quantity
		FROM energy_usage WHERE period_id = ? ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []aggregate.EnergyUsage
	for rows.Next() {
		var e aggregate.EnergyUsage
		if err := rows.Scan(&e.ID, &e.PeriodID, &e.EnergyType, &e.Quantity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestLeakageAssessment implements aggregate.Source.
func (s *Store) LatestLeakageAssessment(ctx context.Context, periodID string) (aggregate.LeakageAssessment, bool, error) {
	var la aggregate.LeakageAssessment
	var assessed string
	eco := &la.Leakage.EcologicalLeakage
	mkt := &la.Leakage.MarketActivityLeakage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, period_id, assessed_at, facility_kg_co2e, biomass_sourcing_kg_co2e,
		       afolu_kg_co2e, energy_material_kg_co2e, iluc_kg_co2e
		FROM leakage_assessments WHERE period_id = ?
		ORDER BY assessed_at DESC, id DESC LIMIT 1`, periodID,
	).Scan(&la.ID, &la.PeriodID, &assessed, &eco.Facility, &eco.BiomassSourcing,
		&mkt.AFOLU, &mkt.EnergyMaterial, &mkt.ILUC)
	if errors.Is(err, sql.ErrNoRows) {
		return aggregate.LeakageAssessment{}, false, nil
	}
	if err != nil {
		return aggregate.LeakageAssessment{}, false, err
	}
	if la.AssessedAt, err = parseTime(assessed); err != nil {
		return aggregate.LeakageAssessment{}, false, err
	}
	return la, true, nil
}

// SequestrationEvents implements aggregate.Source.
func (s *Store) SequestrationEvents(ctx context.Context, periodID string) ([]aggregate.SequestrationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_id, applied_at, mean_soil_temp_c, transport_kg_co2e, packaging_kg_co2e, incorporation_kg_co2e
		FROM sequestration_events WHERE period_id = ? ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []aggregate.SequestrationEvent
	for rows.Next() {
		var ev aggregate.SequestrationEvent
		var applied string
		var temp sql.NullFloat64
		if err := rows.Scan(&ev.ID, &ev.PeriodID, &applied, &temp, &ev.TransportKgCO2e,
			&ev.PackagingKgCO2e, &ev.IncorporationKgCO2e); err != nil {
			return nil, err
		}
		if ev.AppliedAt, err = parseTime(applied); err != nil {
			return nil, err
		}
		if temp.Valid {
			v := temp.Float64
			ev.MeanSoilTempC = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
