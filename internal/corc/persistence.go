package corc

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// CSV column indices for persistence parameter files.
const (
	colPersistenceTempC = 0 // temp_c
	colPersistenceM     = 1 // m (permanence intercept, percent)
	colPersistenceA     = 2 // a (hydrogen sensitivity)
)

//go:embed data/persistence_bc200.csv
var persistenceCSV string

// PersistenceParameters are the BC+200 permanence parameters at one soil temperature.
type PersistenceParameters struct {
	// TempC is the mean annual soil temperature the row applies to.
	TempC float64 `json:"tempC" yaml:"tempC"`

	// M is the permanence intercept in percent.
	M float64 `json:"m" yaml:"m"`

	// A is the sensitivity of permanence to the H/Corg ratio. Always positive.
	A float64 `json:"a" yaml:"a"`
}

// RangePolicy decides what happens when a soil temperature falls outside
// the tabulated range.
type RangePolicy int

const (
	// RangeClamp uses the nearest tabulated entry.
	RangeClamp RangePolicy = iota

	// RangeExtrapolate extends the nearest segment linearly.
	RangeExtrapolate

	// RangeReject fails with a ValidationError.
	RangeReject
)

func (p RangePolicy) String() string {
	switch p {
	case RangeClamp:
		return "clamp"
	case RangeExtrapolate:
		return "extrapolate"
	case RangeReject:
		return "reject"
	}
	return fmt.Sprintf("RangePolicy(%d)", int(p))
}

// ParseRangePolicy parses "clamp", "extrapolate" or "reject".
// An empty string yields RangeClamp.
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return RangeClamp, nil
	case "extrapolate":
		return RangeExtrapolate, nil
	case "reject":
		return RangeReject, nil
	}
	return RangeClamp, fmt.Errorf("unknown temperature range policy %q", s)
}

// PersistenceTable is an immutable, temperature-ordered set of persistence
// parameters. The zero value is not usable; build one with NewPersistenceTable.
type PersistenceTable struct {
	rows []PersistenceParameters
}

// NewPersistenceTable validates rows and returns a table holding a copy of them.
// Rows must be strictly ascending by temperature, have M within (0,100] and A > 0.
func NewPersistenceTable(rows []PersistenceParameters) (*PersistenceTable, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("persistence table needs at least 2 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if !isFinite(r.TempC) || !isFinite(r.M) || !isFinite(r.A) {
			return nil, fmt.Errorf("persistence row %d: non-finite value", i)
		}
		if r.M <= 0 || r.M > 100 {
			return nil, fmt.Errorf("persistence row %d: M must be within (0,100], got %v", i, r.M)
		}
		if r.A <= 0 {
			return nil, fmt.Errorf("persistence row %d: a must be positive, got %v", i, r.A)
		}
		if i > 0 && r.TempC <= rows[i-1].TempC {
			return nil, fmt.Errorf("persistence row %d: temperatures must be strictly ascending (%v after %v)",
				i, r.TempC, rows[i-1].TempC)
		}
	}
	return &PersistenceTable{rows: append([]PersistenceParameters(nil), rows...)}, nil
}

// ParsePersistenceCSV reads a table from CSV with a header row and the
// columns temp_c, m, a. Any malformed row is an error.
func ParsePersistenceCSV(r io.Reader) (*PersistenceTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read persistence header: %w", err)
	}

	var rows []PersistenceParameters
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("persistence line %d: %w", line, err)
		}
		if len(record) <= colPersistenceA {
			return nil, fmt.Errorf("persistence line %d: expected 3 columns, got %d", line, len(record))
		}

		var vals [3]float64
		for i, col := range []int{colPersistenceTempC, colPersistenceM, colPersistenceA} {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("persistence line %d column %d: %w", line, col+1, err)
			}
			vals[i] = v
		}
		rows = append(rows, PersistenceParameters{TempC: vals[0], M: vals[1], A: vals[2]})
	}

	return NewPersistenceTable(rows)
}

var (
	defaultTable     *PersistenceTable
	defaultTableOnce sync.Once
)

// DefaultPersistenceTable returns the embedded BC+200 parameter table
// (10-30 °C in 5 °C steps). It is parsed once on first use.
func DefaultPersistenceTable() *PersistenceTable {
	defaultTableOnce.Do(func() {
		t, err := ParsePersistenceCSV(strings.NewReader(persistenceCSV))
		if err != nil {
			panic(fmt.Sprintf("embedded persistence table is invalid: %v", err))
		}
		logger := packageLogger()
		logger.Debug().
			Int("rows", len(t.rows)).
			Float64("min_temp_c", t.MinTempC()).
			Float64("max_temp_c", t.MaxTempC()).
			Msg("loaded persistence table")
		defaultTable = t
	})
	return defaultTable
}

// Rows returns a copy of the table rows in ascending temperature order.
func (t *PersistenceTable) Rows() []PersistenceParameters {
	return append([]PersistenceParameters(nil), t.rows...)
}

// MinTempC returns the lowest tabulated temperature.
func (t *PersistenceTable) MinTempC() float64 { return t.rows[0].TempC }

// MaxTempC returns the highest tabulated temperature.
func (t *PersistenceTable) MaxTempC() float64 { return t.rows[len(t.rows)-1].TempC }

// ParameterLookup is the result of resolving parameters for a temperature.
type ParameterLookup struct {
	// TempC is the requested temperature.
	TempC float64

	M float64
	A float64

	// Clamped is set when TempC was outside the table and the nearest entry was used.
	Clamped bool

	// Extrapolated is set when TempC was outside the table and M, A were extrapolated.
	Extrapolated bool
}

// Lookup resolves (M, a) for a soil temperature. Temperatures between
// tabulated points are interpolated linearly; temperatures outside the table
// are handled according to policy.
func (t *PersistenceTable) Lookup(tempC float64, policy RangePolicy) (ParameterLookup, error) {
	if !isFinite(tempC) {
		return ParameterLookup{}, newValidationError("meanSoilTempC", "must be finite, got %v", tempC)
	}

	n := len(t.rows)
	first, last := t.rows[0], t.rows[n-1]
	out := ParameterLookup{TempC: tempC}

	if tempC < first.TempC || tempC > last.TempC {
		switch policy {
		case RangeClamp:
			nearest := first
			if tempC > last.TempC {
				nearest = last
			}
			out.M, out.A, out.Clamped = nearest.M, nearest.A, true
			return out, nil
		case RangeExtrapolate:
			lo, hi := t.rows[0], t.rows[1]
			if tempC > last.TempC {
				lo, hi = t.rows[n-2], t.rows[n-1]
			}
			out.M, out.A = interpolate(lo, hi, tempC)
			out.Extrapolated = true
			if out.A <= 0 || out.M <= 0 || out.M > 100 {
				return ParameterLookup{}, newValidationError("meanSoilTempC",
					"%v °C extrapolates to invalid parameters (M %.2f, a %.2f)", tempC, out.M, out.A)
			}
			return out, nil
		default:
			return ParameterLookup{}, newValidationError("meanSoilTempC",
				"%v °C is outside the tabulated range [%v, %v]", tempC, first.TempC, last.TempC)
		}
	}

	// i is the first row at or above tempC.
	i := sort.Search(n, func(i int) bool { return t.rows[i].TempC >= tempC })
	if t.rows[i].TempC == tempC {
		out.M, out.A = t.rows[i].M, t.rows[i].A
		return out, nil
	}
	out.M, out.A = interpolate(t.rows[i-1], t.rows[i], tempC)
	return out, nil
}

// interpolate evaluates the line through lo and hi at tempC for both M and a.
func interpolate(lo, hi PersistenceParameters, tempC float64) (m, a float64) {
	frac := (tempC - lo.TempC) / (hi.TempC - lo.TempC)
	m = lo.M + frac*(hi.M-lo.M)
	a = lo.A + frac*(hi.A-lo.A)
	return m, a
}

// HOverCorg returns the hydrogen to organic carbon atomic ratio from mass
// percentages. It fails with a ValidationError when organicCarbonPercent is zero.
func HOverCorg(hydrogenPercent, organicCarbonPercent float64) (float64, error) {
	if err := validateComposition(organicCarbonPercent, hydrogenPercent); err != nil {
		return 0, err
	}
	return (hydrogenPercent / organicCarbonPercent) * HydrogenCarbonAtomicFactor, nil
}

// PersistenceFraction applies PF = M - a × H/Corg, clamped to [0, 100] percent.
func PersistenceFraction(params ParameterLookup, hOverCorg float64) float64 {
	return Clamp(params.M-params.A*hOverCorg, 0, 100)
}
