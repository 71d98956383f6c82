// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ResultType is the discriminator stored alongside the typed result columns.
// The numeric values are part of the storage contract and must not change.
type ResultType int

const (
	ResultTypeNumber  ResultType = 0
	ResultTypeBoolean ResultType = 1
	ResultTypeJSON    ResultType = 2
	ResultTypeString  ResultType = 3
)

// Typed result column names on the observation table.
const (
	ResultNumberColumn  = "result_number"
	ResultBooleanColumn = "result_boolean"
	ResultJSONColumn    = "result_json"
	ResultStringColumn  = "result_string"
	ResultTypeColumn    = "result_type"
)

// Column returns the storage column holding a result of this type.
func (t ResultType) Column() string {
	switch t {
	case ResultTypeNumber:
		return ResultNumberColumn
	case ResultTypeBoolean:
		return ResultBooleanColumn
	case ResultTypeJSON:
		return ResultJSONColumn
	case ResultTypeString:
		return ResultStringColumn
	}
	return ""
}

// Result is the sum type behind Observation.result. Exactly one of the typed
// fields is meaningful, selected by Type. The API caller never supplies the
// discriminator; it is inferred from the JSON type of the value.
type Result struct {
	Type    ResultType
	Number  float64
	Boolean bool
	String  string
	JSON    json.RawMessage
}

// ParseResult infers the result type from a raw JSON value and returns the
// corresponding Result. Arrays and objects both land in the JSON column.
// A JSON null is rejected: every Observation must carry a result.
func ParseResult(raw json.RawMessage) (Result, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return Result{}, fmt.Errorf("invalid result value: %w", err)
	}
	switch v := value.(type) {
	case float64:
		return Result{Type: ResultTypeNumber, Number: v}, nil
	case bool:
		return Result{Type: ResultTypeBoolean, Boolean: v}, nil
	case string:
		return Result{Type: ResultTypeString, String: v}, nil
	case map[string]interface{}, []interface{}:
		return Result{Type: ResultTypeJSON, JSON: raw}, nil
	case nil:
		return Result{}, fmt.Errorf("result must not be null")
	default:
		return Result{}, fmt.Errorf("unsupported result type %T", v)
	}
}

// Value returns the Go value to bind for the typed column of this result.
func (r Result) Value() interface{} {
	switch r.Type {
	case ResultTypeNumber:
		return r.Number
	case ResultTypeBoolean:
		return r.Boolean
	case ResultTypeJSON:
		return []byte(r.JSON)
	case ResultTypeString:
		return r.String
	}
	return nil
}

// ColumnValues returns the values for all four typed columns in the order
// (string, number, boolean, json), with nil for the three unused columns.
// Used by the bulk ingest path to build a single multi-VALUES insert.
func (r Result) ColumnValues() (interface{}, interface{}, interface{}, interface{}) {
	var s, n, b, j interface{}
	switch r.Type {
	case ResultTypeString:
		s = r.String
	case ResultTypeNumber:
		n = r.Number
	case ResultTypeBoolean:
		b = r.Boolean
	case ResultTypeJSON:
		j = []byte(r.JSON)
	}
	return s, n, b, j
}
