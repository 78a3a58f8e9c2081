package corc

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultPersistenceTable_Shape verifies the embedded table is sorted and complete.
func TestDefaultPersistenceTable_Shape(t *testing.T) {
	table := DefaultPersistenceTable()
	rows := table.Rows()

	require.Len(t, rows, 5)
	assert.Equal(t, 10.0, table.MinTempC())
	assert.Equal(t, 30.0, table.MaxTempC())

	for i, r := range rows {
		assert.Equal(t, 10.0+5*float64(i), r.TempC, "rows are 5 °C apart")
		assert.Greater(t, r.A, 0.0, "a must be positive at %v °C", r.TempC)
		if i > 0 {
			assert.Less(t, r.M, rows[i-1].M, "warmer soil should lower permanence")
		}
	}
}

func TestDefaultPersistenceTable_RowsAreCopies(t *testing.T) {
	table := DefaultPersistenceTable()

	rows := table.Rows()
	rows[0].M = 1

	assert.NotEqual(t, 1.0, table.Rows()[0].M, "mutating Rows() must not change the table")
}

// TestPersistenceTable_Lookup verifies interpolation and the clamp and extrapolate policies.
func TestPersistenceTable_Lookup(t *testing.T) {
	table := DefaultPersistenceTable()

	tests := []struct {
		name             string
		tempC            float64
		policy           RangePolicy
		wantM            float64
		wantA            float64
		wantClamped      bool
		wantExtrapolated bool
	}{
		{name: "exact 20 °C", tempC: 20, policy: RangeClamp, wantM: 89.87, wantA: 35.29},
		{name: "exact lower bound", tempC: 10, policy: RangeReject, wantM: 94.85, wantA: 28.74},
		{name: "exact upper bound", tempC: 30, policy: RangeReject, wantM: 84.01, wantA: 42.39},
		{name: "midpoint 17.5 °C", tempC: 17.5, policy: RangeClamp, wantM: 91.165, wantA: 33.625},
		{name: "quarter 26.25 °C", tempC: 26.25, policy: RangeClamp, wantM: 86.29, wantA: 39.6825},
		{name: "clamp below", tempC: 4, policy: RangeClamp, wantM: 94.85, wantA: 28.74, wantClamped: true},
		{name: "clamp above", tempC: 35, policy: RangeClamp, wantM: 84.01, wantA: 42.39, wantClamped: true},
		{name: "extrapolate below", tempC: 5, policy: RangeExtrapolate, wantM: 97.24, wantA: 25.52, wantExtrapolated: true},
		{name: "extrapolate above", tempC: 35, policy: RangeExtrapolate, wantM: 80.97, wantA: 46.00, wantExtrapolated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Lookup(tt.tempC, tt.policy)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantM, got.M, 1e-9)
			assert.InDelta(t, tt.wantA, got.A, 1e-9)
			assert.Equal(t, tt.tempC, got.TempC)
			assert.Equal(t, tt.wantClamped, got.Clamped)
			assert.Equal(t, tt.wantExtrapolated, got.Extrapolated)
		})
	}
}

// TestPersistenceTable_Lookup_Reject verifies that out-of-range temperatures are rejected.
func TestPersistenceTable_Lookup_Reject(t *testing.T) {
	table := DefaultPersistenceTable()

	for _, temp := range []float64{9.99, 30.01, -5, 45} {
		_, err := table.Lookup(temp, RangeReject)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "temperature %v", temp)
		assert.Equal(t, "meanSoilTempC", ve.Field)
	}
}

// TestPersistenceTable_Lookup_ExtrapolateBounds verifies that extrapolation
// fails once M leaves (0, 100] or a is no longer positive.
func TestPersistenceTable_Lookup_ExtrapolateBounds(t *testing.T) {
	table := DefaultPersistenceTable()

	for _, temp := range []float64{-2, -40, 200} {
		_, err := table.Lookup(temp, RangeExtrapolate)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "temperature %v", temp)
		assert.Equal(t, "meanSoilTempC", ve.Field)
	}

	got, err := table.Lookup(0, RangeExtrapolate)
	require.NoError(t, err)
	assert.True(t, got.Extrapolated)
	assert.LessOrEqual(t, got.M, 100.0)
	assert.Greater(t, got.A, 0.0)
}

// TestPersistenceTable_Lookup_NonFinite verifies non-finite temperatures are rejected.
func TestPersistenceTable_Lookup_NonFinite(t *testing.T) {
	table := DefaultPersistenceTable()

	for _, temp := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := table.Lookup(temp, RangeClamp)
		assert.True(t, IsValidationError(err), "temperature %v", temp)
	}
}

// TestNewPersistenceTable_Invalid verifies table construction errors.
func TestNewPersistenceTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rows []PersistenceParameters
	}{
		{name: "single row", rows: []PersistenceParameters{{TempC: 10, M: 90, A: 30}}},
		{name: "not ascending", rows: []PersistenceParameters{{TempC: 20, M: 90, A: 30}, {TempC: 10, M: 92, A: 28}}},
		{name: "duplicate temperature", rows: []PersistenceParameters{{TempC: 10, M: 90, A: 30}, {TempC: 10, M: 92, A: 28}}},
		{name: "zero a", rows: []PersistenceParameters{{TempC: 10, M: 90, A: 0}, {TempC: 20, M: 88, A: 30}}},
		{name: "M above 100", rows: []PersistenceParameters{{TempC: 10, M: 101, A: 30}, {TempC: 20, M: 88, A: 30}}},
		{name: "NaN", rows: []PersistenceParameters{{TempC: 10, M: math.NaN(), A: 30}, {TempC: 20, M: 88, A: 30}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPersistenceTable(tt.rows)
			assert.Error(t, err)
		})
	}
}

func TestParsePersistenceCSV(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		table, err := ParsePersistenceCSV(strings.NewReader("temp_c,m,a\n0,95,20\n40, 80, 50\n"))
		require.NoError(t, err)

		got, err := table.Lookup(20, RangeReject)
		require.NoError(t, err)
		assert.InDelta(t, 87.5, got.M, 1e-9)
		assert.InDelta(t, 35.0, got.A, 1e-9)
	})

	t.Run("bad number", func(t *testing.T) {
		_, err := ParsePersistenceCSV(strings.NewReader("temp_c,m,a\n10,abc,20\n20,90,30\n"))
		assert.ErrorContains(t, err, "line 2")
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := ParsePersistenceCSV(strings.NewReader("temp_c,m\n10,90\n20,88\n"))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParsePersistenceCSV(strings.NewReader(""))
		assert.Error(t, err)
	})
}

func TestParseRangePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RangePolicy
		wantErr bool
	}{
		{in: "", want: RangeClamp},
		{in: "clamp", want: RangeClamp},
		{in: "Extrapolate", want: RangeExtrapolate},
		{in: " reject ", want: RangeReject},
		{in: "nearest", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRangePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParseRangePolicy(t, got.String()), "String round-trips")
		})
	}
}

func mustParseRangePolicy(t *testing.T, s string) RangePolicy {
	t.Helper()
	p, err := ParseRangePolicy(s)
	require.NoError(t, err)
	return p
}

func TestHOverCorg(t *testing.T) {
	ratio, err := HOverCorg(2, 80)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, ratio, 1e-12)

	_, err = HOverCorg(2, 0)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "organicCarbonPercent", ve.Field)

	_, err = HOverCorg(-1, 80)
	assert.True(t, IsValidationError(err))

	_, err = HOverCorg(2, 120)
	assert.True(t, IsValidationError(err))
}

// TestPersistenceFraction_WorkedExample verifies PF of 79.28 % at H/Corg 0.30 and 20 °C.
func TestPersistenceFraction_WorkedExample(t *testing.T) {
	params, err := DefaultPersistenceTable().Lookup(20, RangeClamp)
	require.NoError(t, err)

	pf := PersistenceFraction(params, 0.30)

	assert.InDelta(t, 79.28, pf, 0.005)
}

// TestPersistenceFraction_DecreasesWithHOverCorg verifies PF is monotonic in H/Corg.
func TestPersistenceFraction_DecreasesWithHOverCorg(t *testing.T) {
	table := DefaultPersistenceTable()

	for _, temp := range []float64{10, 12.5, 15, 20, 27, 30} {
		params, err := table.Lookup(temp, RangeClamp)
		require.NoError(t, err)

		prev := PersistenceFraction(params, 0)
		for ratio := 0.05; ratio <= 0.9; ratio += 0.05 {
			pf := PersistenceFraction(params, ratio)
			assert.Less(t, pf, prev, "PF at %v °C should fall as H/Corg rises to %v", temp, ratio)
			prev = pf
		}
	}
}

func TestPersistenceFraction_Clamped(t *testing.T) {
	assert.Equal(t, 100.0, PersistenceFraction(ParameterLookup{M: 120, A: 10}, 0.1))
	assert.Equal(t, 0.0, PersistenceFraction(ParameterLookup{M: 90, A: 40}, 5))
}
