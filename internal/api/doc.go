// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package api is the HTTP surface of the SensorThings service: the Chi
// router, the resource handlers translating STA URLs through the query
// pipeline, the write handlers driving the mutation engine, and the error
// taxonomy mapping engine errors onto status codes.
//
// STA resource paths (/Things(1)/Datastreams(2)/Observations/$ref) do not
// fit Chi's routing patterns, so everything below the service root funnels
// through a single wildcard into the path parser.
package api
