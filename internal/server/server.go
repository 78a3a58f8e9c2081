// Package server exposes the CORC engine over HTTP.
package server

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
	"github.com/rshade/biochar-corc/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxBodyBytes = 1 << 20

// Server routes API requests to the calculator and aggregator.
type Server struct {
	calculator *corc.Calculator
	aggregator *aggregate.Aggregator
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	logger     zerolog.Logger
	now        func() time.Time
}

// New returns a server. agg may be nil, in which case period routes answer
// 503. m may be nil. gatherer backs /metrics and may be nil to omit it.
func New(calc *corc.Calculator, agg *aggregate.Aggregator, m *metrics.Metrics, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	return &Server{
		calculator: calc,
		aggregator: agg,
		metrics:    m,
		gatherer:   gatherer,
		logger:     logger,
		now:        time.Now,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/v1/methodology", s.methodology).Methods(http.MethodGet)
	r.HandleFunc("/v1/corcs/calculate", s.calculate).Methods(http.MethodPost)
	r.HandleFunc("/v1/corcs/estimate", s.estimate).Methods(http.MethodPost)
	r.HandleFunc("/v1/periods/{id}/corcs", s.period).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(r)
	logged := handlers.CustomLoggingHandler(io.Discard, recovered, s.accessLog)
	return requestID(logged)
}

// instrument records per-route metrics using the matched path template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.WrapHandler(route, next).ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info().
		Str("request_id", p.Request.Header.Get(RequestIDHeader)).
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("duration", time.Since(p.TimeStamp)).
		Msg("request")
}

// requestID assigns a request ID when the client did not send one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Interface("panic", v).Msg("handler panicked")
}
