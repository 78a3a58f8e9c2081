// Package metrics exposes Prometheus collectors for CORC quantification and
// the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rshade/biochar-corc/internal/corc"
)

const namespace = "corc"

// Metrics holds the engine's collectors.
type Metrics struct {
	quantifications *prometheus.CounterVec
	fallbacks       prometheus.Counter
	qualityInvalid  prometheus.Counter
	clamped         prometheus.Counter
	duration        prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quantifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quantifications_total",
			Help:      "Quantifications by outcome (full, estimate, failed).",
		}, []string{"kind"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_fallbacks_total",
			Help:      "Strict calculations that failed validation and fell back to the estimate path.",
		}),
		qualityInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_invalid_total",
			Help:      "Full results whose H/Corg ratio exceeded the eligibility threshold.",
		}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temperature_clamped_total",
			Help:      "Full results whose soil temperature was clamped to the persistence table.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quantification_duration_seconds",
			Help:      "Time to assemble and quantify one monitoring period.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.quantifications,
		m.fallbacks,
		m.qualityInvalid,
		m.clamped,
		m.duration,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// ObserveQuantification records the outcome of one quantification and how
// long it took.
func (m *Metrics) ObserveQuantification(q corc.Quantification, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.quantifications.WithLabelValues(q.Kind.String()).Inc()
	m.duration.Observe(elapsed.Seconds())

	switch q.Kind {
	case corc.KindEstimate:
		m.fallbacks.Inc()
	case corc.KindFull:
		if q.Result == nil {
			return
		}
		if !q.Result.QualityValid {
			m.qualityInvalid.Inc()
		}
		if q.Result.TemperatureClamped {
			m.clamped.Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
