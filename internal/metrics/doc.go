// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package metrics defines the Prometheus instrumentation: HTTP latency and
// throughput per entity, query streaming volume, ingest counters, and rate
// limiter rejections. Everything registers on the default registry and is
// served at /metrics.
package metrics
