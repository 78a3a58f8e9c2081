package aggregate

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Source when a period or facility does not exist.
var ErrNotFound = errors.New("record not found")

// Source is the read-only record store the aggregator queries. Implementations
// must be safe for concurrent use; Assemble issues its queries in parallel.
type Source interface {
	// MonitoringPeriod returns the period, or ErrNotFound.
	MonitoringPeriod(ctx context.Context, periodID string) (MonitoringPeriod, error)

	// Facility returns the facility, or ErrNotFound.
	Facility(ctx context.Context, facilityID string) (Facility, error)

	// CompletedBatches returns the completed production batches of a period.
	CompletedBatches(ctx context.Context, periodID string) ([]ProductionBatch, error)

	// LatestLabTests returns the most recent lab test per batch, keyed by
	// batch ID. Batches without a test are absent from the map.
	LatestLabTests(ctx context.Context, batchIDs []string) (map[string]LabTest, error)

	FeedstockAllocations(ctx context.Context, periodID string) ([]FeedstockAllocation, error)
	EnergyUsage(ctx context.Context, periodID string) ([]EnergyUsage, error)

	// LatestLeakageAssessment returns the most recent assessment and false
	// when the period has none.
	LatestLeakageAssessment(ctx context.Context, periodID string) (LeakageAssessment, bool, error)

	SequestrationEvents(ctx context.Context, periodID string) ([]SequestrationEvent, error)

	// MonitoringPeriodIDs lists every period ID in ascending order.
	MonitoringPeriodIDs(ctx context.Context) ([]string, error)
}
