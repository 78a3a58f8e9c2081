package corc

import (
	"fmt"
	"strings"
)

// BaselineType identifies which baseline convention applies to a facility.
// The engine passes the baseline storage value through unchanged; the type
// only selects the upstream convention.
type BaselineType string

const (
	// BaselineNewBuilt is a facility built for biochar production.
	BaselineNewBuilt BaselineType = "NEW_BUILT"

	// BaselineRetrofitFacility is an existing facility retrofitted for biochar.
	BaselineRetrofitFacility BaselineType = "RETROFIT_FACILITY"

	// BaselineCharcoalRepurpose is charcoal production repurposed for biochar.
	BaselineCharcoalRepurpose BaselineType = "CHARCOAL_REPURPOSE"
)

// Valid reports whether b is one of the known baseline types.
func (b BaselineType) Valid() bool {
	switch b {
	case BaselineNewBuilt, BaselineRetrofitFacility, BaselineCharcoalRepurpose:
		return true
	}
	return false
}

// UnmarshalText normalizes the label to upper case. Unknown labels are kept
// and rejected later by validation.
func (b *BaselineType) UnmarshalText(text []byte) error {
	*b = BaselineType(strings.ToUpper(strings.TrimSpace(string(text))))
	return nil
}

// ParseBaselineType parses a baseline type label, case-insensitively.
// An empty string yields BaselineNewBuilt.
func ParseBaselineType(s string) (BaselineType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BaselineNewBuilt, nil
	}
	b := BaselineType(strings.ToUpper(s))
	if !b.Valid() {
		return "", newValidationError("baselineType", "unknown baseline type %q", s)
	}
	return b, nil
}

// CalculationInput is the canonical input to a CORC calculation for one
// monitoring period. It is built fresh per invocation.
type CalculationInput struct {
	// BiocharDryMassTonnes is the dry mass of biochar produced, in tonnes.
	BiocharDryMassTonnes float64 `json:"biocharDryMassTonnes" yaml:"biocharDryMassTonnes"`

	// OrganicCarbonPercent is the organic carbon content by mass (0-100).
	OrganicCarbonPercent float64 `json:"organicCarbonPercent" yaml:"organicCarbonPercent"`

	// HydrogenPercent is the hydrogen content by mass (0-100).
	HydrogenPercent float64 `json:"hydrogenPercent" yaml:"hydrogenPercent"`

	// MeanSoilTempC is the mean annual soil temperature at the sequestration site.
	MeanSoilTempC float64 `json:"meanSoilTempC" yaml:"meanSoilTempC"`

	BaselineType BaselineType `json:"baselineType" yaml:"baselineType"`

	// BaselineCarbonStorageTCO2e is the carbon that would have been stored
	// without the project, in tonnes CO2e.
	BaselineCarbonStorageTCO2e float64 `json:"baselineCarbonStorageTCO2e" yaml:"baselineCarbonStorageTCO2e"`

	ProjectEmissions ProjectEmissionsInput `json:"projectEmissions" yaml:"projectEmissions"`
	LeakageEmissions LeakageInput          `json:"leakageEmissions" yaml:"leakageEmissions"`
}

// ProjectEmissionsInput holds project emissions in kg CO2e, except the stack
// gas fields which are kg of raw gas.
type ProjectEmissionsInput struct {
	BiomassEmissions    BiomassEmissions    `json:"biomassEmissions" yaml:"biomassEmissions"`
	ProductionEmissions ProductionEmissions `json:"productionEmissions" yaml:"productionEmissions"`
	EmbodiedEmissions   EmbodiedEmissions   `json:"embodiedEmissions" yaml:"embodiedEmissions"`
	EndUseEmissions     EndUseEmissions     `json:"endUseEmissions" yaml:"endUseEmissions"`
}

// BiomassEmissions are feedstock supply chain emissions in kg CO2e.
type BiomassEmissions struct {
	Cultivation   float64 `json:"cultivation" yaml:"cultivation"`
	Collection    float64 `json:"collection" yaml:"collection"`
	Transport     float64 `json:"transport" yaml:"transport"`
	Preprocessing float64 `json:"preprocessing" yaml:"preprocessing"`
}

// ProductionEmissions are pyrolysis emissions. StackCH4Kg and StackN2OKg are
// kg of the raw gas; every other field is kg CO2e.
type ProductionEmissions struct {
	Energy      float64 `json:"energy" yaml:"energy"`
	Materials   float64 `json:"materials" yaml:"materials"`
	Waste       float64 `json:"waste" yaml:"waste"`
	StackCH4Kg  float64 `json:"stackCH4Kg" yaml:"stackCH4Kg"`
	StackN2OKg  float64 `json:"stackN2OKg" yaml:"stackN2OKg"`
	FossilCO2Kg float64 `json:"fossilCO2Kg" yaml:"fossilCO2Kg"`
	Maintenance float64 `json:"maintenance" yaml:"maintenance"`
}

// EmbodiedEmissions are amortized infrastructure and direct land-use change
// emissions in kg CO2e.
type EmbodiedEmissions struct {
	Infrastructure float64 `json:"infrastructure" yaml:"infrastructure"`
	DLUC           float64 `json:"dLUC" yaml:"dLUC"`
}

// EndUseEmissions are emissions from delivering and applying biochar, in kg CO2e.
type EndUseEmissions struct {
	Transport     float64 `json:"transport" yaml:"transport"`
	Packaging     float64 `json:"packaging" yaml:"packaging"`
	Incorporation float64 `json:"incorporation" yaml:"incorporation"`
}

// LeakageInput holds leakage emissions in kg CO2e.
type LeakageInput struct {
	EcologicalLeakage     EcologicalLeakage     `json:"ecologicalLeakage" yaml:"ecologicalLeakage"`
	MarketActivityLeakage MarketActivityLeakage `json:"marketActivityLeakage" yaml:"marketActivityLeakage"`
}

// EcologicalLeakage is leakage from facility siting and biomass sourcing.
type EcologicalLeakage struct {
	Facility        float64 `json:"facility" yaml:"facility"`
	BiomassSourcing float64 `json:"biomassSourcing" yaml:"biomassSourcing"`
}

// MarketActivityLeakage is leakage displaced through markets.
type MarketActivityLeakage struct {
	AFOLU          float64 `json:"afolu" yaml:"afolu"`
	EnergyMaterial float64 `json:"energyMaterial" yaml:"energyMaterial"`
	ILUC           float64 `json:"iluc" yaml:"iluc"`
}

// EmissionsBreakdown holds the project emission subtotals in tonnes CO2e.
type EmissionsBreakdown struct {
	BiomassEmissionsTCO2e    float64 `json:"biomassEmissionsTCO2e"`
	ProductionEmissionsTCO2e float64 `json:"productionEmissionsTCO2e"`
	EmbodiedEmissionsTCO2e   float64 `json:"embodiedEmissionsTCO2e"`
	EndUseEmissionsTCO2e     float64 `json:"endUseEmissionsTCO2e"`
}

// CalculationResult is the certified net removal for a monitoring period and
// the terms it was derived from. All quantities are tonnes CO2e.
type CalculationResult struct {
	CStoredTCO2e               float64 `json:"cStoredTCO2e"`
	CBaselineTCO2e             float64 `json:"cBaselineTCO2e"`
	CLossTCO2e                 float64 `json:"cLossTCO2e"`
	PersistenceFractionPercent float64 `json:"persistenceFractionPercent"`
	EProjectTCO2e              float64 `json:"eProjectTCO2e"`
	ELeakageTCO2e              float64 `json:"eLeakageTCO2e"`
	NetCORCsTCO2e              float64 `json:"netCORCsTCO2e"`

	// QualityValid is false when H/Corg exceeds the eligibility threshold.
	// It is advisory; the numeric result is still produced.
	QualityValid bool `json:"qualityValid"`

	PermanenceType string             `json:"permanenceType"`
	Breakdown      EmissionsBreakdown `json:"breakdown"`

	HOverCorg          float64 `json:"hOverCorg"`
	TemperatureClamped bool    `json:"temperatureClamped"`
	Methodology        string  `json:"methodology"`
}

// EstimateResult is the reduced-fidelity result of the estimate path.
// It carries no emissions or leakage breakdown.
type EstimateResult struct {
	CStoredTCO2e               float64 `json:"cStoredTCO2e"`
	CLossTCO2e                 float64 `json:"cLossTCO2e"`
	EstimatedEmissionsTCO2e    float64 `json:"estimatedEmissionsTCO2e"`
	EstimatedCORCsTCO2e        float64 `json:"estimatedCORCsTCO2e"`
	PersistenceFractionPercent float64 `json:"persistenceFractionPercent"`
}

// validate checks the invariants every strict calculation relies on.
func (in CalculationInput) validate() error {
	if !isFinite(in.BiocharDryMassTonnes) || in.BiocharDryMassTonnes < 0 {
		return newValidationError("biocharDryMassTonnes", "must be a non-negative number, got %v", in.BiocharDryMassTonnes)
	}
	if err := validateComposition(in.OrganicCarbonPercent, in.HydrogenPercent); err != nil {
		return err
	}
	if !isFinite(in.MeanSoilTempC) {
		return newValidationError("meanSoilTempC", "must be finite, got %v", in.MeanSoilTempC)
	}
	if !in.BaselineType.Valid() {
		return newValidationError("baselineType", "unknown baseline type %q", in.BaselineType)
	}
	if !isFinite(in.BaselineCarbonStorageTCO2e) || in.BaselineCarbonStorageTCO2e < 0 {
		return newValidationError("baselineCarbonStorageTCO2e", "must be a non-negative number, got %v", in.BaselineCarbonStorageTCO2e)
	}
	for _, f := range in.ProjectEmissions.fields() {
		if err := validateKg(f.name, f.value); err != nil {
			return err
		}
	}
	for _, f := range in.LeakageEmissions.fields() {
		if err := validateKg(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

func validateComposition(organicCarbonPercent, hydrogenPercent float64) error {
	if !isFinite(organicCarbonPercent) || organicCarbonPercent < 0 || organicCarbonPercent > 100 {
		return newValidationError("organicCarbonPercent", "must be within [0,100], got %v", organicCarbonPercent)
	}
	if organicCarbonPercent == 0 {
		return newValidationError("organicCarbonPercent", "must be greater than zero to form the H/Corg ratio")
	}
	if !isFinite(hydrogenPercent) || hydrogenPercent < 0 || hydrogenPercent > 100 {
		return newValidationError("hydrogenPercent", "must be within [0,100], got %v", hydrogenPercent)
	}
	return nil
}

func validateKg(name string, v float64) error {
	if !isFinite(v) || v < 0 {
		return newValidationError(name, "must be a non-negative number of kg, got %v", v)
	}
	return nil
}

type namedValue struct {
	name  string
	value float64
}

func (p ProjectEmissionsInput) fields() []namedValue {
	b, pr, e, u := p.BiomassEmissions, p.ProductionEmissions, p.EmbodiedEmissions, p.EndUseEmissions
	return []namedValue{
		{"projectEmissions.biomassEmissions.cultivation", b.Cultivation},
		{"projectEmissions.biomassEmissions.collection", b.Collection},
		{"projectEmissions.biomassEmissions.transport", b.Transport},
		{"projectEmissions.biomassEmissions.preprocessing", b.Preprocessing},
		{"projectEmissions.productionEmissions.energy", pr.Energy},
		{"projectEmissions.productionEmissions.materials", pr.Materials},
		{"projectEmissions.productionEmissions.waste", pr.Waste},
		{"projectEmissions.productionEmissions.stackCH4Kg", pr.StackCH4Kg},
		{"projectEmissions.productionEmissions.stackN2OKg", pr.StackN2OKg},
		{"projectEmissions.productionEmissions.fossilCO2Kg", pr.FossilCO2Kg},
		{"projectEmissions.productionEmissions.maintenance", pr.Maintenance},
		{"projectEmissions.embodiedEmissions.infrastructure", e.Infrastructure},
		{"projectEmissions.embodiedEmissions.dLUC", e.DLUC},
		{"projectEmissions.endUseEmissions.transport", u.Transport},
		{"projectEmissions.endUseEmissions.packaging", u.Packaging},
		{"projectEmissions.endUseEmissions.incorporation", u.Incorporation},
	}
}

func (l LeakageInput) fields() []namedValue {
	e, m := l.EcologicalLeakage, l.MarketActivityLeakage
	return []namedValue{
		{"leakageEmissions.ecologicalLeakage.facility", e.Facility},
		{"leakageEmissions.ecologicalLeakage.biomassSourcing", e.BiomassSourcing},
		{"leakageEmissions.marketActivityLeakage.afolu", m.AFOLU},
		{"leakageEmissions.marketActivityLeakage.energyMaterial", m.EnergyMaterial},
		{"leakageEmissions.marketActivityLeakage.iluc", m.ILUC},
	}
}

// String summarises the headline figures of a result.
func (r CalculationResult) String() string {
	return fmt.Sprintf("net %s tCO2e (stored %s, PF %s%%, quality valid %t)",
		formatFloat(r.NetCORCsTCO2e), formatFloat(r.CStoredTCO2e),
		formatFloat(r.PersistenceFractionPercent), r.QualityValid)
}
