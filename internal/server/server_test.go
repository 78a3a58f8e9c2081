package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
	"github.com/rshade/biochar-corc/internal/metrics"
	"github.com/rshade/biochar-corc/internal/report"
)

var periodStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testDataset() aggregate.Dataset {
	done := periodStart.Add(time.Hour)
	return aggregate.Dataset{
		Facilities: []aggregate.Facility{{ID: "F1", BaselineType: corc.BaselineNewBuilt}},
		Periods: []aggregate.MonitoringPeriod{
			{ID: "P1", FacilityID: "F1", Start: periodStart, End: periodStart.Add(90 * 24 * time.Hour)},
			{ID: "P-negative", FacilityID: "F1", Start: periodStart, End: periodStart.Add(90 * 24 * time.Hour)},
			{ID: "P-empty", FacilityID: "F1", Start: periodStart, End: periodStart.Add(90 * 24 * time.Hour)},
			{ID: "P-energy", FacilityID: "F1", Start: periodStart, End: periodStart.Add(90 * 24 * time.Hour)},
		},
		Batches: []aggregate.ProductionBatch{
			{ID: "B1", PeriodID: "P1", CompletedAt: done, DryMassTonnes: 100, OrganicCarbonPercent: 80, HydrogenPercent: 2},
			{ID: "B2", PeriodID: "P-negative", CompletedAt: done, DryMassTonnes: 10, OrganicCarbonPercent: 80, HydrogenPercent: 2, WasteKgCO2e: -1},
			{ID: "B3", PeriodID: "P-energy", CompletedAt: done, DryMassTonnes: 10, OrganicCarbonPercent: 80, HydrogenPercent: 2},
		},
		Energy: []aggregate.EnergyUsage{
			{ID: "E1", PeriodID: "P-energy", EnergyType: "plasma", Quantity: 1},
		},
		Sequestrations: []aggregate.SequestrationEvent{
			{ID: "S1", PeriodID: "P1", MeanSoilTempC: func() *float64 { v := 20.0; return &v }()},
		},
	}
}

type fixture struct {
	handler http.Handler
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, withSource bool) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var agg *aggregate.Aggregator
	if withSource {
		agg = aggregate.NewAggregator(aggregate.NewMemorySource(testDataset()), aggregate.DefaultEmissionFactors(), zerolog.Nop())
	}
	s := New(corc.DefaultCalculator(), agg, m, reg, zerolog.Nop())
	s.now = func() time.Time { return periodStart.Add(100 * 24 * time.Hour) }
	return fixture{handler: s.Handler(), reg: reg}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const workedExampleBody = `{
	"biocharDryMassTonnes": 100,
	"organicCarbonPercent": 80,
	"hydrogenPercent": 2,
	"meanSoilTempC": 20,
	"baselineType": "NEW_BUILT"
}`

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

// TestRequestID_Propagated verifies that a caller's X-Request-ID is echoed.
func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

// TestCalculate verifies the calculate route across the full, estimate,
// strict and failure outcomes.
func TestCalculate(t *testing.T) {
	f := newFixture(t, false)

	t.Run("full", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate", workedExampleBody)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var doc report.Document
		decodeBody(t, rec, &doc)
		assert.Equal(t, corc.KindFull, doc.Kind)
		assert.False(t, doc.Approximate)
		require.NotNil(t, doc.Result)
		assert.InDelta(t, 79.283, doc.Result.PersistenceFractionPercent, 1e-3)
		assert.InDelta(t, 293.333, doc.Result.CStoredTCO2e, 1e-3)
		assert.True(t, doc.Result.QualityValid)
	})

	t.Run("fallback to estimate", func(t *testing.T) {
		body := strings.Replace(workedExampleBody, `"NEW_BUILT"`, `"BOGUS"`, 1)
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var doc report.Document
		decodeBody(t, rec, &doc)
		assert.Equal(t, corc.KindEstimate, doc.Kind)
		assert.True(t, doc.Approximate)
		require.NotNil(t, doc.Estimate)
		assert.Contains(t, doc.Cause, "baselineType")
	})

	t.Run("strict rejects", func(t *testing.T) {
		body := strings.Replace(workedExampleBody, `"NEW_BUILT"`, `"BOGUS"`, 1)
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate?strict=true", body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var e errorResponse
		decodeBody(t, rec, &e)
		assert.Equal(t, "baselineType", e.Field)
	})

	t.Run("lower-case baseline", func(t *testing.T) {
		body := strings.Replace(workedExampleBody, `"NEW_BUILT"`, `"new_built"`, 1)
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate?strict=true", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var doc report.Document
		decodeBody(t, rec, &doc)
		assert.Equal(t, corc.KindFull, doc.Kind)
	})

	t.Run("strict full", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate?strict=true", workedExampleBody)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("both paths fail", func(t *testing.T) {
		body := strings.Replace(workedExampleBody, `"organicCarbonPercent": 80`, `"organicCarbonPercent": 0`, 1)
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate", body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var doc report.Document
		decodeBody(t, rec, &doc)
		assert.Equal(t, corc.KindFailed, doc.Kind)
		assert.Contains(t, doc.Cause, "organicCarbonPercent")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate", `{"biocharDryMassTonnes":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/corcs/calculate", `{"biocharMass": 1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/corcs/calculate", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

// TestEstimate verifies the estimate route.
func TestEstimate(t *testing.T) {
	f := newFixture(t, false)

	t.Run("ok", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/corcs/estimate",
			`{"biocharDryMassTonnes":100,"organicCarbonPercent":80,"hydrogenPercent":2,"meanSoilTempC":20}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var est corc.EstimateResult
		decodeBody(t, rec, &est)
		assert.InDelta(t, 293.333, est.CStoredTCO2e, 1e-3)
		assert.InDelta(t, 29.333, est.EstimatedEmissionsTCO2e, 1e-3)
		assert.InDelta(t, est.CStoredTCO2e-est.CLossTCO2e-est.EstimatedEmissionsTCO2e, est.EstimatedCORCsTCO2e, 1e-9)
	})

	t.Run("zero carbon", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/corcs/estimate",
			`{"biocharDryMassTonnes":100,"organicCarbonPercent":0,"hydrogenPercent":2,"meanSoilTempC":20}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var e errorResponse
		decodeBody(t, rec, &e)
		assert.Equal(t, "organicCarbonPercent", e.Field)
	})
}

// TestPeriod verifies the period route in JSON and audit text form and its
// error mapping.
func TestPeriod(t *testing.T) {
	f := newFixture(t, true)

	t.Run("full", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/periods/P1/corcs", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp PeriodResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, "P1", resp.PeriodID)
		assert.Equal(t, corc.KindFull, resp.Kind)
		require.NotNil(t, resp.Update)
		assert.Equal(t, report.StatusCalculated, resp.Update.Status)
		assert.Equal(t, "P1", resp.Update.PeriodID)
		assert.Equal(t, resp.Result.NetCORCsTCO2e, resp.Update.NetCORCsTCO2e)
		assert.True(t, resp.Update.ComputedAt.Equal(periodStart.Add(100*24*time.Hour)))
	})

	t.Run("estimated", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/periods/P-negative/corcs", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp PeriodResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, corc.KindEstimate, resp.Kind)
		require.NotNil(t, resp.Update)
		assert.True(t, resp.Update.Approximate)
		assert.Equal(t, report.StatusEstimated, resp.Update.Status)
	})

	t.Run("audit text", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/periods/P1/corcs?format=text", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), "Monitoring period: P1")
		assert.Contains(t, rec.Body.String(), "Persistence fraction: 79.28%")
	})

	tests := []struct {
		name   string
		period string
		status int
	}{
		{"missing period", "P-missing", http.StatusNotFound},
		{"no batches", "P-empty", http.StatusUnprocessableEntity},
		{"unknown energy type", "P-energy", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/periods/"+tt.period+"/corcs", "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

// TestPeriod_NoSource verifies that period routes are unavailable without a data source.
func TestPeriod_NoSource(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/v1/periods/P1/corcs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodology(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/v1/methodology", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var m MethodologyResponse
	decodeBody(t, rec, &m)
	assert.Equal(t, "BC+200/IPCC-AR5", m.Name)
	assert.Equal(t, corc.GWPAR5, m.GWP)
	assert.Equal(t, "clamp", m.TemperatureRangePolicy)
	assert.Len(t, m.PersistenceTable, 5)
}

// TestMetricsEndpoint verifies that request and quantification metrics are exposed.
func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/v1/corcs/calculate", workedExampleBody)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `corc_quantifications_total{kind="full"} 1`)
	assert.Contains(t, body, `corc_http_requests_total{route="/v1/corcs/calculate",status="200"} 1`)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestRecovery verifies that a panicking handler yields a 500 and is logged.
func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	s := New(nil, nil, nil, nil, zerolog.New(&buf))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/methodology", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "handler panicked")
}
