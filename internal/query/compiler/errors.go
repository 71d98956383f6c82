// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package compiler

import "fmt"

// InvalidFieldError reports an unknown entity, property, or navigation in a
// query option.
type InvalidFieldError struct {
	Entity string
	Field  string
}

func (e *InvalidFieldError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("unknown field %q", e.Field)
	}
	return fmt.Sprintf("unknown field %q on entity %s", e.Field, e.Entity)
}

// ResultFormatError reports $resultFormat on a query that cannot honor it.
type ResultFormatError struct {
	Entity string
}

func (e *ResultFormatError) Error() string {
	return fmt.Sprintf("$resultFormat=dataArray is only supported on Observations, not %s", e.Entity)
}

// PathCompileError reports a resource path the compiler cannot translate.
type PathCompileError struct {
	Reason string
}

func (e *PathCompileError) Error() string { return e.Reason }
