package corc

import (
	"fmt"
	"sort"
	"strings"
)

// GWPSet is a versioned set of 100-year global warming potentials used to
// convert stack gas masses to CO2e.
type GWPSet struct {
	// Version names the assessment report the factors come from.
	Version string `json:"version" yaml:"version"`

	// CH4 is the kg CO2e per kg of methane.
	CH4 float64 `json:"ch4" yaml:"ch4"`

	// N2O is the kg CO2e per kg of nitrous oxide.
	N2O float64 `json:"n2o" yaml:"n2o"`
}

var (
	// GWPAR5 holds the IPCC Fifth Assessment Report GWP100 values
	// (without climate-carbon feedbacks).
	GWPAR5 = GWPSet{Version: "IPCC-AR5", CH4: 28, N2O: 265}

	// GWPAR6 holds the IPCC Sixth Assessment Report GWP100 values
	// (non-fossil methane).
	GWPAR6 = GWPSet{Version: "IPCC-AR6", CH4: 27.0, N2O: 273}
)

var gwpSets = map[string]GWPSet{
	strings.ToUpper(GWPAR5.Version): GWPAR5,
	strings.ToUpper(GWPAR6.Version): GWPAR6,
}

// DefaultGWPVersion is the GWP set applied when none is configured.
const DefaultGWPVersion = "IPCC-AR5"

// LookupGWP returns the GWP set registered under version, case-insensitively.
func LookupGWP(version string) (GWPSet, bool) {
	set, ok := gwpSets[strings.ToUpper(strings.TrimSpace(version))]
	return set, ok
}

// GWPVersions lists the registered GWP set versions in sorted order.
func GWPVersions() []string {
	out := make([]string, 0, len(gwpSets))
	for _, s := range gwpSets {
		out = append(out, s.Version)
	}
	sort.Strings(out)
	return out
}

// Validate checks that both factors are positive and finite.
func (g GWPSet) Validate() error {
	if !isFinite(g.CH4) || g.CH4 <= 0 {
		return fmt.Errorf("gwp %s: CH4 factor must be positive, got %v", g.Version, g.CH4)
	}
	if !isFinite(g.N2O) || g.N2O <= 0 {
		return fmt.Errorf("gwp %s: N2O factor must be positive, got %v", g.Version, g.N2O)
	}
	return nil
}
