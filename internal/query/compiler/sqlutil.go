// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package compiler

import (
	"fmt"
	"strings"
)

// quoteIdent double-quotes an SQL identifier. Table and column names come
// from the static entity model, never from user input, but "commit" and
// "location" collide with keywords so everything is quoted uniformly.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral single-quotes an SQL string literal. Only used for fragments
// that cannot be parameterized (link URLs assembled inside json_build_object);
// all user-supplied values go through bind parameters.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// argList collects bind parameters and hands out $n placeholders.
type argList struct {
	args []interface{}
}

// add appends a value and returns its placeholder.
func (a *argList) add(value interface{}) string {
	a.args = append(a.args, value)
	return fmt.Sprintf("$%d", len(a.args))
}

// isoTimestamp renders a timestamp expression as UTC ISO-8601 text with a
// trailing Z, the wire format for every datetime in responses.
func isoTimestamp(expr string) string {
	return fmt.Sprintf(`to_char(timezone('UTC', %s), 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`, expr)
}

// isoRange renders a tstzrange column as `lower/upper` ISO text, NULL when
// the column is NULL.
func isoRange(col string) string {
	return fmt.Sprintf(`CASE WHEN %s IS NULL THEN NULL ELSE %s || '/' || %s END`,
		col, isoTimestamp("lower("+col+")"), isoTimestamp("upper("+col+")"))
}

// isoRangeOrInstant renders a tstzrange as an instant when the bounds
// coincide, otherwise as `lower/upper`. Observation.phenomenonTime uses this.
func isoRangeOrInstant(col string) string {
	return fmt.Sprintf(
		`CASE WHEN %s IS NULL THEN NULL WHEN lower(%s) = upper(%s) THEN %s ELSE %s || '/' || %s END`,
		col, col, col,
		isoTimestamp("lower("+col+")"),
		isoTimestamp("lower("+col+")"), isoTimestamp("upper("+col+")"))
}

// collatedTextProperties lists the JSON-surface properties ordered with the
// "C" collation so text ordering is byte-wise and implementation independent.
var collatedTextProperties = map[string]bool{
	"name":            true,
	"description":     true,
	"encodingType":    true,
	"definition":      true,
	"observationType": true,
	"author":          true,
	"message":         true,
}
