package corc

import (
	"fmt"
	"strings"
)

// Methodology bundles the parameters a calculation depends on. Two
// calculators built from equal methodologies produce identical results.
type Methodology struct {
	// Name labels results, e.g. "BC+200/IPCC-AR5".
	Name string

	// PermanenceModel is reported as CalculationResult.PermanenceType.
	PermanenceModel string

	Persistence *PersistenceTable
	RangePolicy RangePolicy
	GWP         GWPSet

	// QualityThreshold is the maximum eligible H/Corg ratio.
	QualityThreshold float64

	// EstimatedEmissionsFraction is the share of stored carbon the
	// estimate path deducts in place of project emissions and leakage.
	EstimatedEmissionsFraction float64
}

// DefaultMethodology returns the embedded BC+200 table, the clamp policy,
// IPCC AR5 GWPs and a 0.7 quality threshold.
func DefaultMethodology() Methodology {
	m := Methodology{
		PermanenceModel:            PermanenceModelBC200,
		Persistence:                DefaultPersistenceTable(),
		RangePolicy:                RangeClamp,
		GWP:                        GWPAR5,
		QualityThreshold:           DefaultQualityThreshold,
		EstimatedEmissionsFraction: DefaultEstimatedEmissionsFraction,
	}
	m.Name = m.label()
	return m
}

func (m Methodology) label() string {
	return m.PermanenceModel + "/" + m.GWP.Version
}

// Validate checks that the methodology is complete and its parameters are sane.
func (m Methodology) Validate() error {
	if strings.TrimSpace(m.PermanenceModel) == "" {
		return fmt.Errorf("methodology: permanence model is required")
	}
	if m.Persistence == nil {
		return fmt.Errorf("methodology: persistence table is required")
	}
	if m.RangePolicy < RangeClamp || m.RangePolicy > RangeReject {
		return fmt.Errorf("methodology: unknown range policy %v", m.RangePolicy)
	}
	if err := m.GWP.Validate(); err != nil {
		return fmt.Errorf("methodology: %w", err)
	}
	if !isFinite(m.QualityThreshold) || m.QualityThreshold <= 0 {
		return fmt.Errorf("methodology: quality threshold must be positive, got %v", m.QualityThreshold)
	}
	if !isFinite(m.EstimatedEmissionsFraction) || m.EstimatedEmissionsFraction < 0 || m.EstimatedEmissionsFraction >= 1 {
		return fmt.Errorf("methodology: estimated emissions fraction must be within [0,1), got %v", m.EstimatedEmissionsFraction)
	}
	return nil
}
