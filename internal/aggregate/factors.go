package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// HoursPerYear is the length of an average year (365.25 days) in hours.
const HoursPerYear = 8766.0

// DefaultTransportKgCO2ePerTonneKm is the road freight factor for a loaded
// articulated diesel truck.
const DefaultTransportKgCO2ePerTonneKm = 0.1

// ErrUnknownEnergyType is returned when an energy usage record has no emission factor.
var ErrUnknownEnergyType = errors.New("no emission factor for energy type")

// EmissionFactors converts activity data to kg CO2e.
type EmissionFactors struct {
	// TransportKgCO2ePerTonneKm applies to feedstock haulage.
	TransportKgCO2ePerTonneKm float64 `yaml:"transportKgCO2ePerTonneKm" json:"transportKgCO2ePerTonneKm"`

	// Energy maps a lower-case energy type to kg CO2e per unit consumed.
	Energy map[string]float64 `yaml:"energy" json:"energy"`
}

// DefaultEmissionFactors returns factors for the common energy carriers.
//
//   - electricity: kg CO2e per kWh (grid average)
//   - diesel: kg CO2e per litre
//   - natural_gas: kg CO2e per cubic metre
//   - lpg: kg CO2e per litre
//   - biomass: biogenic, counted as zero
func DefaultEmissionFactors() EmissionFactors {
	return EmissionFactors{
		TransportKgCO2ePerTonneKm: DefaultTransportKgCO2ePerTonneKm,
		Energy: map[string]float64{
			"electricity": 0.4,
			"diesel":      2.68,
			"natural_gas": 2.02,
			"lpg":         1.56,
			"biomass":     0,
		},
	}
}

// EnergyFactor returns the kg CO2e per unit for energyType.
func (f EmissionFactors) EnergyFactor(energyType string) (float64, error) {
	factor, ok := f.Energy[normalizeEnergyType(energyType)]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownEnergyType, energyType)
	}
	return factor, nil
}

// EnergyTypes lists the configured energy types in sorted order.
func (f EmissionFactors) EnergyTypes() []string {
	out := make([]string, 0, len(f.Energy))
	for k := range f.Energy {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every factor is non-negative.
func (f EmissionFactors) Validate() error {
	if f.TransportKgCO2ePerTonneKm < 0 {
		return fmt.Errorf("transport factor must be non-negative, got %v", f.TransportKgCO2ePerTonneKm)
	}
	for k, v := range f.Energy {
		if v < 0 {
			return fmt.Errorf("energy factor %q must be non-negative, got %v", k, v)
		}
		if k != normalizeEnergyType(k) {
			return fmt.Errorf("energy type %q must be lower-case snake_case", k)
		}
	}
	return nil
}

func normalizeEnergyType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
