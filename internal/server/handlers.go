package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
	"github.com/rshade/biochar-corc/internal/report"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// EstimateRequest is the body of POST /v1/corcs/estimate.
type EstimateRequest struct {
	BiocharDryMassTonnes float64 `json:"biocharDryMassTonnes"`
	OrganicCarbonPercent float64 `json:"organicCarbonPercent"`
	HydrogenPercent      float64 `json:"hydrogenPercent"`
	MeanSoilTempC        float64 `json:"meanSoilTempC"`
}

// PeriodResponse is the body of GET /v1/periods/{id}/corcs.
type PeriodResponse struct {
	report.Document
	Update *report.MonitoringPeriodUpdate `json:"update,omitempty"`
}

// MethodologyResponse describes the active methodology.
type MethodologyResponse struct {
	Name                       string                       `json:"name"`
	PermanenceModel            string                       `json:"permanenceModel"`
	GWP                        corc.GWPSet                  `json:"gwp"`
	TemperatureRangePolicy     string                       `json:"temperatureRangePolicy"`
	QualityThreshold           float64                      `json:"qualityThreshold"`
	EstimatedEmissionsFraction float64                      `json:"estimatedEmissionsFraction"`
	PersistenceTable           []corc.PersistenceParameters `json:"persistenceTable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, errorResponse{Error: msg, Field: field})
}

// writeCalcError maps a calculation error to 422 for validation failures
// and 500 otherwise.
func writeCalcError(w http.ResponseWriter, err error) {
	var ve *corc.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), ve.Field)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error(), "")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "")
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) methodology(w http.ResponseWriter, _ *http.Request) {
	m := s.calculator.Methodology()
	writeJSON(w, http.StatusOK, MethodologyResponse{
		Name:                       m.Name,
		PermanenceModel:            m.PermanenceModel,
		GWP:                        m.GWP,
		TemperatureRangePolicy:     m.RangePolicy.String(),
		QualityThreshold:           m.QualityThreshold,
		EstimatedEmissionsFraction: m.EstimatedEmissionsFraction,
		PersistenceTable:           m.Persistence.Rows(),
	})
}

// calculate runs the strict calculation with estimate fallback. With
// ?strict=true a validation failure is returned as 422 instead.
func (s *Server) calculate(w http.ResponseWriter, r *http.Request) {
	var in corc.CalculationInput
	if !decode(w, r, &in) {
		return
	}

	if r.URL.Query().Get("strict") == "true" {
		start := time.Now()
		res, err := s.calculator.Calculate(in)
		if err != nil {
			s.metrics.ObserveQuantification(corc.Quantification{Kind: corc.KindFailed, Cause: err}, time.Since(start))
			writeCalcError(w, err)
			return
		}
		q := corc.Quantification{Kind: corc.KindFull, Result: &res}
		s.metrics.ObserveQuantification(q, time.Since(start))
		writeJSON(w, http.StatusOK, report.NewDocument("", q))
		return
	}

	start := time.Now()
	q := s.calculator.Quantify(in)
	s.metrics.ObserveQuantification(q, time.Since(start))

	status := http.StatusOK
	if q.Kind == corc.KindFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report.NewDocument("", q))
}

func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !decode(w, r, &req) {
		return
	}

	est, err := s.calculator.Estimate(req.BiocharDryMassTonnes, req.OrganicCarbonPercent, req.HydrogenPercent, req.MeanSoilTempC)
	if err != nil {
		writeCalcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// period assembles and quantifies a stored monitoring period. ?format=text
// returns the audit report instead of JSON.
func (s *Server) period(w http.ResponseWriter, r *http.Request) {
	if s.aggregator == nil {
		writeError(w, http.StatusServiceUnavailable, "no monitoring-period data source configured", "")
		return
	}
	id := mux.Vars(r)["id"]

	start := time.Now()
	in, err := s.aggregator.Assemble(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, aggregate.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error(), "")
		case errors.Is(err, aggregate.ErrNoCompletedBatches), errors.Is(err, aggregate.ErrUnknownEnergyType):
			writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
		default:
			s.logger.Error().Err(err).Str("period_id", id).Msg("failed to assemble monitoring period")
			writeError(w, http.StatusInternalServerError, err.Error(), "")
		}
		return
	}

	q := s.calculator.Quantify(in)
	s.metrics.ObserveQuantification(q, time.Since(start))

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if q.Kind == corc.KindFailed {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		_, _ = w.Write([]byte(report.AuditText(id, q)))
		return
	}

	resp := PeriodResponse{Document: report.NewDocument(id, q)}
	if q.Kind == corc.KindFailed {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	update, err := report.NewMonitoringPeriodUpdate(id, q, s.calculator.Methodology().Name, s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	resp.Update = &update
	writeJSON(w, http.StatusOK, resp)
}
