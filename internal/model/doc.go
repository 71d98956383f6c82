// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package model holds the static SensorThings entity schema: entity names and
// their singular/plural aliases, table names, default projections, the
// JSON-surface to storage-column mapping, relationship descriptors, and the
// geometry/range column sets the query compiler needs for type-aware
// projection.
//
// Everything in this package is immutable after init. The parser resolves URL
// path segments through it, the compiler resolves $select/$expand identifiers
// through it, and the mutation engine consults it to classify payload keys as
// columns, relations, or garbage.
package model
