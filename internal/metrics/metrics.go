// Package metrics exposes the service's Prometheus instrumentation. One
// Registry is constructed at startup and passed to the components that
// record into it; nothing here is package-global.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the validation service records.
type Registry struct {
	reg *prometheus.Registry

	ValidationDuration *prometheus.HistogramVec
	ValidationsTotal   *prometheus.CounterVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	ConflictsResolved *prometheus.CounterVec
	FallbacksTotal    *prometheus.CounterVec

	BreakerState      *prometheus.GaugeVec
	ActiveValidations prometheus.Gauge
	RateLimited       prometheus.Counter
}

// NewRegistry builds and registers all validation metrics on a private
// Prometheus registry, so tests can construct as many as they like.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		ValidationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crosscheck_validation_duration_seconds",
				Help:    "Duration of cross-validation calls in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"entity_kind", "outcome"},
		),

		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crosscheck_validations_total",
				Help: "Total cross-validation calls by entity kind and outcome",
			},
			[]string{"entity_kind", "outcome"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crosscheck_cache_hits_total",
				Help: "Report cache hits by tier",
			},
			[]string{"tier"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crosscheck_cache_misses_total",
				Help: "Report cache misses by tier",
			},
			[]string{"tier"},
		),

		ConflictsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crosscheck_conflicts_resolved_total",
				Help: "Field conflicts resolved, by resolution method",
			},
			[]string{"method"},
		),

		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crosscheck_fallbacks_total",
				Help: "Fallback results served, by reason",
			},
			[]string{"reason"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crosscheck_breaker_state",
				Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
			},
			[]string{"source"},
		),

		ActiveValidations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crosscheck_active_validations",
				Help: "Cross-validation calls currently in flight",
			},
		),

		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crosscheck_rate_limited_total",
				Help: "Requests rejected by the sliding-window rate limit",
			},
		),
	}

	r.reg.MustRegister(
		r.ValidationDuration,
		r.ValidationsTotal,
		r.CacheHits,
		r.CacheMisses,
		r.ConflictsResolved,
		r.FallbacksTotal,
		r.BreakerState,
		r.ActiveValidations,
		r.RateLimited,
	)

	return r
}

// ObserveValidation records one completed cross-validation call.
func (r *Registry) ObserveValidation(entityKind, outcome string, d time.Duration) {
	r.ValidationDuration.WithLabelValues(entityKind, outcome).Observe(d.Seconds())
	r.ValidationsTotal.WithLabelValues(entityKind, outcome).Inc()
}

// RecordCacheHit records a report cache hit for the given tier.
func (r *Registry) RecordCacheHit(tier string) {
	r.CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a report cache miss for the given tier.
func (r *Registry) RecordCacheMiss(tier string) {
	r.CacheMisses.WithLabelValues(tier).Inc()
}

// RecordConflict counts one resolved field conflict by method.
func (r *Registry) RecordConflict(method string) {
	r.ConflictsResolved.WithLabelValues(method).Inc()
}

// RecordFallback counts one fallback result served, by reason.
func (r *Registry) RecordFallback(reason string) {
	r.FallbacksTotal.WithLabelValues(reason).Inc()
}

// SetBreakerState publishes a source's breaker state as a gauge value.
func (r *Registry) SetBreakerState(source string, state float64) {
	r.BreakerState.WithLabelValues(source).Set(state)
}

// Handler serves this registry at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
