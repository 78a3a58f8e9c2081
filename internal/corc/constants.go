// Package corc quantifies CO2 removal certificates (CORCs) for biochar
// production using the BC+200 permanence model.
package corc

const (
	// CO2PerCarbon converts a mass of carbon to the mass of CO2 that contains it (44/12).
	CO2PerCarbon = 44.0 / 12.0

	// HydrogenCarbonAtomicFactor converts the H/Corg mass-percent ratio to an
	// atomic ratio (molar mass of carbon over hydrogen, rounded to 12).
	HydrogenCarbonAtomicFactor = 12.0

	// DefaultQualityThreshold is the maximum H/Corg atomic ratio for an eligible batch.
	DefaultQualityThreshold = 0.7

	// DefaultSoilTempC is the mean annual soil temperature used when no
	// sequestration event supplies one.
	DefaultSoilTempC = 15.0

	// KgPerTonne converts kilograms to metric tonnes.
	KgPerTonne = 1000.0

	// DefaultEstimatedEmissionsFraction is the share of gross stored carbon
	// deducted as emissions on the estimate path.
	DefaultEstimatedEmissionsFraction = 0.10

	// PermanenceModelBC200 labels results computed with the BC+200 model.
	PermanenceModelBC200 = "BC+200"

	// ComparisonTolerance is the rounding tolerance used when comparing tCO2e terms.
	ComparisonTolerance = 1e-6
)
