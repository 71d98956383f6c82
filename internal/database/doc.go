// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package database is the PostgreSQL/PostGIS access layer.
//
// Reads go through the streaming Executor, which runs a compiled statement
// behind a server-side cursor and writes the response envelope chunk by
// chunk, so result sets of any size stream in constant memory. Writes go
// through the Mutator, which implements deep insert, partial update, delete,
// the Observation ingest path with automatic FeatureOfInterest generation,
// and the derived-state maintenance on Datastream.
//
// The package owns the schema: New creates the istsos tables, the link
// tables, and (when versioning is enabled) the system-time shadow tables and
// their triggers.
package database
