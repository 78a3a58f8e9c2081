// Package aggregate assembles a corc.CalculationInput for a monitoring period
// from production, lab, energy, facility, leakage and sequestration records.
package aggregate

import (
	"time"

	"github.com/rshade/biochar-corc/internal/corc"
)

// MonitoringPeriod is the accounting window CORCs are computed over.
type MonitoringPeriod struct {
	ID         string    `json:"id" yaml:"id"`
	FacilityID string    `json:"facilityId" yaml:"facilityId"`
	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
}

// Years returns the length of the period in years (365.25 days).
func (p MonitoringPeriod) Years() float64 {
	return p.End.Sub(p.Start).Hours() / HoursPerYear
}

// ProductionBatch is a completed pyrolysis run. Composition fields are the
// batch defaults; a lab test for the batch overrides them.
type ProductionBatch struct {
	ID                   string    `json:"id" yaml:"id"`
	PeriodID             string    `json:"periodId" yaml:"periodId"`
	CompletedAt          time.Time `json:"completedAt" yaml:"completedAt"`
	DryMassTonnes        float64   `json:"dryMassTonnes" yaml:"dryMassTonnes"`
	OrganicCarbonPercent float64   `json:"organicCarbonPercent" yaml:"organicCarbonPercent"`
	HydrogenPercent      float64   `json:"hydrogenPercent" yaml:"hydrogenPercent"`

	// Stack gas measurements in kg of raw gas.
	StackCH4Kg float64 `json:"stackCH4Kg" yaml:"stackCH4Kg"`
	StackN2OKg float64 `json:"stackN2OKg" yaml:"stackN2OKg"`

	// Remaining production emissions in kg CO2e.
	FossilCO2Kg       float64 `json:"fossilCO2Kg" yaml:"fossilCO2Kg"`
	MaterialsKgCO2e   float64 `json:"materialsKgCO2e" yaml:"materialsKgCO2e"`
	WasteKgCO2e       float64 `json:"wasteKgCO2e" yaml:"wasteKgCO2e"`
	MaintenanceKgCO2e float64 `json:"maintenanceKgCO2e" yaml:"maintenanceKgCO2e"`
}

// LabTest is an elemental analysis of a batch.
type LabTest struct {
	ID                   string    `json:"id" yaml:"id"`
	BatchID              string    `json:"batchId" yaml:"batchId"`
	TestedAt             time.Time `json:"testedAt" yaml:"testedAt"`
	OrganicCarbonPercent float64   `json:"organicCarbonPercent" yaml:"organicCarbonPercent"`
	HydrogenPercent      float64   `json:"hydrogenPercent" yaml:"hydrogenPercent"`
}

// FeedstockAllocation assigns feedstock to production within a period.
type FeedstockAllocation struct {
	ID                  string  `json:"id" yaml:"id"`
	PeriodID            string  `json:"periodId" yaml:"periodId"`
	FeedstockType       string  `json:"feedstockType" yaml:"feedstockType"`
	MassTonnes          float64 `json:"massTonnes" yaml:"massTonnes"`
	TransportDistanceKm float64 `json:"transportDistanceKm" yaml:"transportDistanceKm"`
	CultivationKgCO2e   float64 `json:"cultivationKgCO2e" yaml:"cultivationKgCO2e"`
	CollectionKgCO2e    float64 `json:"collectionKgCO2e" yaml:"collectionKgCO2e"`
	PreprocessingKgCO2e float64 `json:"preprocessingKgCO2e" yaml:"preprocessingKgCO2e"`
}

// EnergyUsage is energy consumed by the facility, in the unit its emission factor expects.
type EnergyUsage struct {
	ID         string  `json:"id" yaml:"id"`
	PeriodID   string  `json:"periodId" yaml:"periodId"`
	EnergyType string  `json:"energyType" yaml:"energyType"`
	Quantity   float64 `json:"quantity" yaml:"quantity"`
}

// Facility holds the infrastructure and baseline data of a production site.
type Facility struct {
	ID                         string            `json:"id" yaml:"id"`
	Name                       string            `json:"name" yaml:"name"`
	BaselineType               corc.BaselineType `json:"baselineType" yaml:"baselineType"`
	BaselineCarbonStorageTCO2e float64           `json:"baselineCarbonStorageTCO2e" yaml:"baselineCarbonStorageTCO2e"`

	// InfrastructureEmissionsKgCO2e is the total embodied emission of the
	// plant, amortized over AmortizationYears.
	InfrastructureEmissionsKgCO2e float64 `json:"infrastructureEmissionsKgCO2e" yaml:"infrastructureEmissionsKgCO2e"`
	AmortizationYears             float64 `json:"amortizationYears" yaml:"amortizationYears"`

	// DLUCKgCO2ePerYear is the annualized direct land-use change emission.
	DLUCKgCO2ePerYear float64 `json:"dLUCKgCO2ePerYear" yaml:"dLUCKgCO2ePerYear"`
}

// LeakageAssessment is a dated leakage evaluation for a period.
type LeakageAssessment struct {
	ID         string            `json:"id" yaml:"id"`
	PeriodID   string            `json:"periodId" yaml:"periodId"`
	AssessedAt time.Time         `json:"assessedAt" yaml:"assessedAt"`
	Leakage    corc.LeakageInput `json:"leakage" yaml:"leakage"`
}

// SequestrationEvent records biochar applied to soil.
type SequestrationEvent struct {
	ID        string    `json:"id" yaml:"id"`
	PeriodID  string    `json:"periodId" yaml:"periodId"`
	AppliedAt time.Time `json:"appliedAt" yaml:"appliedAt"`

	// MeanSoilTempC is nil when the site temperature is unknown.
	MeanSoilTempC *float64 `json:"meanSoilTempC,omitempty" yaml:"meanSoilTempC,omitempty"`

	TransportKgCO2e     float64 `json:"transportKgCO2e" yaml:"transportKgCO2e"`
	PackagingKgCO2e     float64 `json:"packagingKgCO2e" yaml:"packagingKgCO2e"`
	IncorporationKgCO2e float64 `json:"incorporationKgCO2e" yaml:"incorporationKgCO2e"`
}
