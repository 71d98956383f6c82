// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package filter

import "fmt"

// ParseError reports a malformed $filter expression.
type ParseError struct {
	Message string
	Pos     int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid filter at position %d: %s", e.Pos, e.Message)
}

// UnsupportedFunctionError reports a function outside the supported OData
// subset.
type UnsupportedFunctionError struct {
	Name string
}

func (e *UnsupportedFunctionError) Error() string {
	return fmt.Sprintf("unsupported filter function %q", e.Name)
}
