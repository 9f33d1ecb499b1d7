package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SignIns           prometheus.Counter
	SignOuts          prometheus.Counter
	AdminChecks       *prometheus.CounterVec
	AdminCheckSeconds prometheus.Histogram
	FlagCacheHits     prometheus.Counter
	FlagCacheMisses   prometheus.Counter
	SettingsUpdates   prometheus.Counter
	SettingsRollbacks prometheus.Counter
	GuardDecisions    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignIns: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopgate_signins_total",
			Help: "Total number of successful sign-ins",
		}),
		SignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopgate_signouts_total",
			Help: "Total number of sign-outs",
		}),
		AdminChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_admin_checks_total",
			Help: "Authoritative admin verifications by outcome",
		}, []string{"outcome"}),
		AdminCheckSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopgate_admin_check_duration_seconds",
			Help:    "Latency of authoritative admin verifications",
			Buckets: prometheus.DefBuckets,
		}),
		FlagCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopgate_admin_flag_cache_hits_total",
			Help: "Persisted admin-flag reads that returned a trusted value",
		}),
		FlagCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopgate_admin_flag_cache_misses_total",
			Help: "Persisted admin-flag reads that required verification",
		}),
		SettingsUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopgate_settings_updates_total",
			Help: "Accepted store settings updates",
		}),
		SettingsRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopgate_settings_rollbacks_total",
			Help: "Optimistic settings updates rolled back after remote rejection",
		}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_guard_decisions_total",
			Help: "Route guard outcomes (render, redirect, denied, loading)",
		}, []string{"outcome"}),
	}
}

// AdminCheckOutcome increments the admin check counter for an outcome label
// (confirmed, denied, timeout, error).
func (m *Metrics) AdminCheckOutcome(outcome string) {
	m.AdminChecks.WithLabelValues(outcome).Inc()
}

// GuardDecision increments the guard decision counter.
func (m *Metrics) GuardDecision(outcome string) {
	m.GuardDecisions.WithLabelValues(outcome).Inc()
}
