// Package metrics exposes Prometheus collectors for the analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Check pipeline metrics
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finopsguard_checks_total",
			Help: "Total number of cost impact checks",
		},
		[]string{"status"}, // status: ok/error/cancelled
	)

	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finopsguard_check_duration_seconds",
			Help:    "Cost impact check duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)

	// Pricing metrics
	PricingLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finopsguard_pricing_lookups_total",
			Help: "Total number of per-resource pricing resolutions",
		},
		[]string{"provider", "source"}, // source: live/static
	)

	PricingFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finopsguard_pricing_fallbacks_total",
			Help: "Total number of live pricing failures that fell back to the static catalog",
		},
		[]string{"provider"},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finopsguard_cache_hits_total",
			Help: "Total number of analysis cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finopsguard_cache_misses_total",
			Help: "Total number of analysis cache misses",
		},
	)

	// Policy metrics
	PolicyEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finopsguard_policy_evaluations_total",
			Help: "Total number of policy evaluations",
		},
		[]string{"status"}, // status: pass/fail
	)

	// Store metrics
	AnalysesPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finopsguard_analyses_persisted_total",
			Help: "Total number of analysis records written to the store",
		},
	)
)
