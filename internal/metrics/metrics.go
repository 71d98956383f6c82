// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, entity collection, and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sta_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "entity", "status"},
	)

	// HTTPRequestDuration observes request latency by method and entity.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sta_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "entity"},
	)

	// HTTPActiveRequests gauges in-flight requests.
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sta_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	// QueryDuration observes compiled-statement execution time by entity and
	// shape (collection, single, count).
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sta_query_duration_seconds",
			Help:    "SQL statement execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "shape"},
	)

	// StreamedEntities counts entities written to streaming responses.
	StreamedEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sta_streamed_entities_total",
			Help: "Total number of entities streamed in responses",
		},
		[]string{"entity"},
	)

	// ObservationsIngested counts created observations by ingest path.
	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sta_observations_ingested_total",
			Help: "Total number of observations created",
		},
		[]string{"path"}, // "single", "deep_insert", "data_array", "bulk"
	)

	// MutationsTotal counts writes by entity and operation.
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sta_mutations_total",
			Help: "Total number of create, update, and delete operations",
		},
		[]string{"entity", "operation", "outcome"},
	)

	// RateLimitHits counts requests rejected by the rate limiter.
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sta_rate_limit_hits_total",
			Help: "Total number of rate-limited requests",
		},
	)
)

// RecordRequest records one finished HTTP request.
func RecordRequest(method, entity, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, entity, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, entity).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(start bool) {
	if start {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordMutation records one write operation.
func RecordMutation(entity, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	MutationsTotal.WithLabelValues(entity, operation, outcome).Inc()
}
