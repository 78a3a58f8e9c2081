package corc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Calculator quantifies CORCs under a fixed methodology. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	methodology Methodology
	logger      zerolog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithLogger attaches a logger for range and quality warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Calculator) {
		c.logger = logger
	}
}

// NewCalculator validates m and returns a calculator bound to it.
func NewCalculator(m Methodology, opts ...Option) (*Calculator, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = m.label()
	}
	c := &Calculator{methodology: m, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	defaultCalculator     *Calculator
	defaultCalculatorOnce sync.Once
)

// DefaultCalculator returns a shared calculator using DefaultMethodology.
func DefaultCalculator() *Calculator {
	defaultCalculatorOnce.Do(func() {
		c, err := NewCalculator(DefaultMethodology())
		if err != nil {
			panic(fmt.Sprintf("default methodology is invalid: %v", err))
		}
		defaultCalculator = c
	})
	return defaultCalculator
}

// CalculateCORCs runs the strict calculation with the default methodology.
func CalculateCORCs(in CalculationInput) (CalculationResult, error) {
	return DefaultCalculator().Calculate(in)
}

// EstimateCORCs runs the estimate path with the default methodology.
func EstimateCORCs(biocharMassTonnes, organicCarbonPercent, hydrogenPercent, meanSoilTempC float64) (EstimateResult, error) {
	return DefaultCalculator().Estimate(biocharMassTonnes, organicCarbonPercent, hydrogenPercent, meanSoilTempC)
}

// Methodology returns the methodology the calculator was built with.
func (c *Calculator) Methodology() Methodology {
	return c.methodology
}

// permanence holds the terms shared by the strict and estimate paths.
type permanence struct {
	lookup    ParameterLookup
	hOverCorg float64
	pf        float64
	stored    float64
	loss      float64
}

func (c *Calculator) permanence(massTonnes, organicCarbonPercent, hydrogenPercent, tempC float64) (permanence, error) {
	lookup, err := c.methodology.Persistence.Lookup(tempC, c.methodology.RangePolicy)
	if err != nil {
		return permanence{}, err
	}
	if lookup.Clamped || lookup.Extrapolated {
		c.logger.Warn().
			Float64("mean_soil_temp_c", tempC).
			Float64("min_temp_c", c.methodology.Persistence.MinTempC()).
			Float64("max_temp_c", c.methodology.Persistence.MaxTempC()).
			Str("range_policy", c.methodology.RangePolicy.String()).
			Msg("soil temperature outside persistence table")
	}

	ratio, err := HOverCorg(hydrogenPercent, organicCarbonPercent)
	if err != nil {
		return permanence{}, err
	}

	pf := PersistenceFraction(lookup, ratio)
	stored := StoredCarbonTCO2e(massTonnes, organicCarbonPercent)
	loss, err := CarbonLossTCO2e(stored, pf)
	if err != nil {
		return permanence{}, err
	}

	return permanence{lookup: lookup, hOverCorg: ratio, pf: pf, stored: stored, loss: loss}, nil
}

// Calculate computes the certified net removal:
//
//	net = cStored - cBaseline - cLoss - eProject - eLeakage
//
// It returns a *ValidationError for malformed input or when any term is not
// finite. A batch that fails the quality check still yields a result with
// QualityValid set to false.
func (c *Calculator) Calculate(in CalculationInput) (CalculationResult, error) {
	if err := in.validate(); err != nil {
		return CalculationResult{}, err
	}

	perm, err := c.permanence(in.BiocharDryMassTonnes, in.OrganicCarbonPercent, in.HydrogenPercent, in.MeanSoilTempC)
	if err != nil {
		return CalculationResult{}, err
	}

	quality, err := AssessQuality(in.HydrogenPercent, in.OrganicCarbonPercent, c.methodology.QualityThreshold)
	if err != nil {
		return CalculationResult{}, err
	}

	// Accumulate in kg; convert to tonnes once here.
	projectKg := SumProjectEmissionsKg(in.ProjectEmissions, c.methodology.GWP)
	eProject := kgToTonnes(projectKg.Total())
	eLeakage := kgToTonnes(SumLeakageKg(in.LeakageEmissions))

	net := perm.stored - in.BaselineCarbonStorageTCO2e - perm.loss - eProject - eLeakage

	terms := []namedValue{
		{"cStoredTCO2e", perm.stored},
		{"cLossTCO2e", perm.loss},
		{"eProjectTCO2e", eProject},
		{"eLeakageTCO2e", eLeakage},
		{"netCORCsTCO2e", net},
	}
	for _, t := range terms {
		if !isFinite(t.value) {
			return CalculationResult{}, newValidationError(t.name, "term is not finite (%v)", t.value)
		}
	}

	if !quality.Valid {
		c.logger.Warn().
			Float64("h_over_corg", quality.HOverCorg).
			Float64("threshold", quality.Threshold).
			Msg("biochar exceeds H/Corg eligibility threshold")
	}

	return CalculationResult{
		CStoredTCO2e:               perm.stored,
		CBaselineTCO2e:             in.BaselineCarbonStorageTCO2e,
		CLossTCO2e:                 perm.loss,
		PersistenceFractionPercent: perm.pf,
		EProjectTCO2e:              eProject,
		ELeakageTCO2e:              eLeakage,
		NetCORCsTCO2e:              net,
		QualityValid:               quality.Valid,
		PermanenceType:             c.methodology.PermanenceModel,
		Breakdown:                  projectKg.Breakdown(),
		HOverCorg:                  quality.HOverCorg,
		TemperatureClamped:         perm.lookup.Clamped,
		Methodology:                c.methodology.Name,
	}, nil
}

// Estimate is the reduced-fidelity path. It shares the persistence, stored
// carbon and loss formulas with Calculate but replaces project emissions and
// leakage with a single coarse deduction.
func (c *Calculator) Estimate(biocharMassTonnes, organicCarbonPercent, hydrogenPercent, meanSoilTempC float64) (EstimateResult, error) {
	if !isFinite(biocharMassTonnes) || biocharMassTonnes < 0 {
		return EstimateResult{}, newValidationError("biocharDryMassTonnes", "must be a non-negative number, got %v", biocharMassTonnes)
	}

	perm, err := c.permanence(biocharMassTonnes, organicCarbonPercent, hydrogenPercent, meanSoilTempC)
	if err != nil {
		return EstimateResult{}, err
	}

	emissions := perm.stored * c.methodology.EstimatedEmissionsFraction
	corcs := perm.stored - perm.loss - emissions

	terms := []namedValue{
		{"cStoredTCO2e", perm.stored},
		{"cLossTCO2e", perm.loss},
		{"estimatedEmissionsTCO2e", emissions},
		{"estimatedCORCsTCO2e", corcs},
	}
	for _, t := range terms {
		if !isFinite(t.value) {
			return EstimateResult{}, newValidationError(t.name, "term is not finite (%v)", t.value)
		}
	}

	return EstimateResult{
		CStoredTCO2e:               perm.stored,
		CLossTCO2e:                 perm.loss,
		EstimatedEmissionsTCO2e:    emissions,
		EstimatedCORCsTCO2e:        corcs,
		PersistenceFractionPercent: perm.pf,
	}, nil
}

// QuantificationKind tags which path produced a Quantification.
type QuantificationKind int

const (
	// KindFull means the strict calculation succeeded.
	KindFull QuantificationKind = iota

	// KindEstimate means the strict calculation failed validation and the
	// estimate path produced an approximation.
	KindEstimate

	// KindFailed means neither path could produce a number.
	KindFailed
)

func (k QuantificationKind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindEstimate:
		return "estimate"
	case KindFailed:
		return "failed"
	}
	return fmt.Sprintf("QuantificationKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k QuantificationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *QuantificationKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "full":
		*k = KindFull
	case "estimate":
		*k = KindEstimate
	case "failed":
		*k = KindFailed
	default:
		return fmt.Errorf("unknown quantification kind %q", text)
	}
	return nil
}

// Quantification is the tagged outcome of Quantify. Exactly one of Result
// and Estimate is set unless Kind is KindFailed.
type Quantification struct {
	Kind     QuantificationKind
	Result   *CalculationResult
	Estimate *EstimateResult

	// Cause is the error that forced the estimate path, or the combined
	// failure when Kind is KindFailed.
	Cause error
}

// Approximate reports whether the outcome came from the estimate path.
func (q Quantification) Approximate() bool {
	return q.Kind == KindEstimate
}

// NetTCO2e returns the net removal of whichever path succeeded.
func (q Quantification) NetTCO2e() (float64, bool) {
	switch {
	case q.Kind == KindFull && q.Result != nil:
		return q.Result.NetCORCsTCO2e, true
	case q.Kind == KindEstimate && q.Estimate != nil:
		return q.Estimate.EstimatedCORCsTCO2e, true
	}
	return 0, false
}

// Quantify runs Calculate and, only when it fails validation, Estimate on
// the same composition and temperature. The returned Kind records which path
// produced the number.
func (c *Calculator) Quantify(in CalculationInput) Quantification {
	res, err := c.Calculate(in)
	if err == nil {
		return Quantification{Kind: KindFull, Result: &res}
	}
	if !IsValidationError(err) {
		return Quantification{Kind: KindFailed, Cause: err}
	}

	c.logger.Info().
		Err(err).
		Msg("strict calculation failed validation, falling back to estimate")

	est, estErr := c.Estimate(in.BiocharDryMassTonnes, in.OrganicCarbonPercent, in.HydrogenPercent, in.MeanSoilTempC)
	if estErr != nil {
		return Quantification{Kind: KindFailed, Cause: errors.Join(err, estErr)}
	}
	return Quantification{Kind: KindEstimate, Estimate: &est, Cause: err}
}
