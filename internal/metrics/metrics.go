// Package metrics holds the Prometheus collectors exported by subpulse.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsRejectedTotal counts raw events dropped by the normalizer.
	EventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subpulse_events_rejected_total",
			Help: "Total number of raw events rejected during normalization",
		},
		[]string{"reason"},
	)

	// EventsAcceptedTotal counts canonical events produced by the normalizer.
	EventsAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subpulse_events_accepted_total",
			Help: "Total number of events accepted during normalization",
		},
	)

	// ResultCacheRequestsTotal counts result cache lookups by outcome.
	ResultCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subpulse_result_cache_requests_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"outcome"}, // "hit", "miss", "shared"
	)

	// ResultCacheInvalidationsTotal counts entries dropped by range invalidation.
	ResultCacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subpulse_result_cache_invalidations_total",
			Help: "Total number of result cache entries invalidated",
		},
	)

	// ComputationDuration observes how long cached computations take.
	ComputationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subpulse_computation_duration_seconds",
			Help:    "Duration of computations behind the result cache",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ForecastFailuresTotal counts forecasts that failed per error class.
	ForecastFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subpulse_forecast_failures_total",
			Help: "Total number of failed model fits by model and class",
		},
		[]string{"model", "class"},
	)

	// SnapshotLoadsTotal counts event snapshot loads from the source.
	SnapshotLoadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subpulse_snapshot_loads_total",
			Help: "Total number of event snapshots loaded",
		},
	)

	// HTTPRequestsTotal counts API requests by route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subpulse_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestDuration observes API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subpulse_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
