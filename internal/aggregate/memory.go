package aggregate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Dataset is a complete set of records, as stored in a dataset file.
type Dataset struct {
	Periods        []MonitoringPeriod    `json:"periods" yaml:"periods"`
	Facilities     []Facility            `json:"facilities" yaml:"facilities"`
	Batches        []ProductionBatch     `json:"batches" yaml:"batches"`
	LabTests       []LabTest             `json:"labTests" yaml:"labTests"`
	Allocations    []FeedstockAllocation `json:"allocations" yaml:"allocations"`
	Energy         []EnergyUsage         `json:"energy" yaml:"energy"`
	Leakage        []LeakageAssessment   `json:"leakage" yaml:"leakage"`
	Sequestrations []SequestrationEvent  `json:"sequestrations" yaml:"sequestrations"`
}

// LoadDataset reads a dataset from a .json, .yaml or .yml file.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to read dataset: %w", err)
	}

	var ds Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ds)
	default:
		err = json.Unmarshal(data, &ds)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	return ds, nil
}

// MemorySource serves a Dataset from memory. It is read-only after
// construction and safe for concurrent use.
type MemorySource struct {
	ds Dataset
}

// NewMemorySource returns a source serving ds.
func NewMemorySource(ds Dataset) *MemorySource {
	return &MemorySource{ds: ds}
}

// MonitoringPeriod implements Source.
func (m *MemorySource) MonitoringPeriod(ctx context.Context, periodID string) (MonitoringPeriod, error) {
	if err := ctx.Err(); err != nil {
		return MonitoringPeriod{}, err
	}
	for _, p := range m.ds.Periods {
		if p.ID == periodID {
			return p, nil
		}
	}
	return MonitoringPeriod{}, ErrNotFound
}

// MonitoringPeriodIDs implements Source.
func (m *MemorySource) MonitoringPeriodIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.ds.Periods))
	for _, p := range m.ds.Periods {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Facility implements Source.
func (m *MemorySource) Facility(ctx context.Context, facilityID string) (Facility, error) {
	if err := ctx.Err(); err != nil {
		return Facility{}, err
	}
	for _, f := range m.ds.Facilities {
		if f.ID == facilityID {
			return f, nil
		}
	}
	return Facility{}, ErrNotFound
}

// CompletedBatches implements Source.
func (m *MemorySource) CompletedBatches(ctx context.Context, periodID string) ([]ProductionBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ProductionBatch
	for _, b := range m.ds.Batches {
		if b.PeriodID == periodID && !b.CompletedAt.IsZero() {
			out = append(out, b)
		}
	}
	return out, nil
}

// LatestLabTests implements Source.
func (m *MemorySource) LatestLabTests(ctx context.Context, batchIDs []string) (map[string]LabTest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(batchIDs))
	for _, id := range batchIDs {
		want[id] = true
	}
	out := make(map[string]LabTest)
	for _, t := range m.ds.LabTests {
		if !want[t.BatchID] {
			continue
		}
		if cur, ok := out[t.BatchID]; !ok || t.TestedAt.After(cur.TestedAt) {
			out[t.BatchID] = t
		}
	}
	return out, nil
}

// FeedstockAllocations implements Source.
func (m *MemorySource) FeedstockAllocations(ctx context.Context, periodID string) ([]FeedstockAllocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []FeedstockAllocation
	for _, a := range m.ds.Allocations {
		if a.PeriodID == periodID {
			out = append(out, a)
		}
	}
	return out, nil
}

// EnergyUsage implements Source.
func (m *MemorySource) EnergyUsage(ctx context.Context, periodID string) ([]EnergyUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []EnergyUsage
	for _, e := range m.ds.Energy {
		if e.PeriodID == periodID {
			out = append(out, e)
		}
	}
	return out, nil
}

// LatestLeakageAssessment implements Source.
func (m *MemorySource) LatestLeakageAssessment(ctx context.Context, periodID string) (LeakageAssessment, bool, error) {
	if err := ctx.Err(); err != nil {
		return LeakageAssessment{}, false, err
	}
	var latest LeakageAssessment
	found := false
	for _, l := range m.ds.Leakage {
		if l.PeriodID != periodID {
			continue
		}
		if !found || l.AssessedAt.After(latest.AssessedAt) {
			latest, found = l, true
		}
	}
	return latest, found, nil
}

// SequestrationEvents implements Source.
func (m *MemorySource) SequestrationEvents(ctx context.Context, periodID string) ([]SequestrationEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []SequestrationEvent
	for _, s := range m.ds.Sequestrations {
		if s.PeriodID == periodID {
			out = append(out, s)
		}
	}
	return out, nil
}
