// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package middleware provides the HTTP middleware stack: request IDs,
// Prometheus instrumentation, and JWT bearer authentication. CORS and rate
// limiting come from go-chi/cors and go-chi/httprate and are wired in the
// router.
package middleware
