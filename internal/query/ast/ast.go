// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package ast defines the typed query tree produced by the parser and
// consumed by the bitemporal resolver and the SQL compiler.
//
// A QueryNode captures every STA query option of one (sub)query. Expanded
// navigation properties carry their own nested QueryNode, so a full request
// forms a tree mirroring the $expand structure.
package ast

import "time"

// QueryNode is one (sub)query: the root query of a request, or the
// parenthesized sub-options of an $expand item.
type QueryNode struct {
	Select       *SelectNode
	Filter       *FilterNode
	Expand       *ExpandNode
	OrderBy      *OrderByNode
	Skip         *SkipNode
	Top          *TopNode
	Count        *CountNode
	AsOf         *AsOfNode
	FromTo       *FromToNode
	ResultFormat *ResultFormatNode

	// IsSubquery marks nested nodes; $resultFormat is rejected on them.
	IsSubquery bool

	// TravelTime is set by the bitemporal resolver when this node must be
	// compiled against the entity's system-time shadow table with a
	// system_time_validity condition derived from AsOf/FromTo.
	TravelTime bool
}

// SelectNode lists the selected JSON-surface property names in request order.
type SelectNode struct {
	Items []string
}

// FilterNode holds a parsed $filter expression.
type FilterNode struct {
	// Expr is the root of the boolean expression tree.
	Expr Expr

	// Raw preserves the original text for error messages and nextLink
	// reconstruction.
	Raw string
}

// ExpandNode lists the expanded navigation properties in request order.
type ExpandNode struct {
	Items []*ExpandItem
}

// ExpandItem is one $expand entry: a navigation property, optionally with
// parenthesized sub-options.
type ExpandItem struct {
	// Name is the navigation property ("Observations", "Thing", ...).
	Name string

	// Subquery carries the parenthesized sub-options, nil when absent.
	Subquery *QueryNode
}

// OrderByNode lists ordering terms in priority order.
type OrderByNode struct {
	Items []OrderByItem
}

// OrderByItem is one ordering term.
type OrderByItem struct {
	// Property is the JSON-surface property name.
	Property string

	// Desc is true for descending order. Default ordering is ascending.
	Desc bool
}

// SkipNode is a parsed $skip value.
type SkipNode struct {
	Value int
}

// TopNode is a parsed $top value.
type TopNode struct {
	Value int
}

// CountNode is a parsed $count value.
type CountNode struct {
	Value bool
}

// AsOfNode is a parsed $as_of instant, normalized to UTC.
type AsOfNode struct {
	Value time.Time
}

// FromToNode is a parsed $from_to interval, normalized to UTC.
type FromToNode struct {
	From time.Time
	To   time.Time
}

// ResultFormatNode is a parsed $resultFormat value. The only accepted value
// is "dataArray".
type ResultFormatNode struct {
	Value string
}

// IsDataArray reports whether the query requested the DataArray shape.
func (q *QueryNode) IsDataArray() bool {
	return q.ResultFormat != nil && q.ResultFormat.Value == "dataArray"
}

// HasSystemTime reports whether the query carries $as_of or $from_to.
func (q *QueryNode) HasSystemTime() bool {
	return q.AsOf != nil || q.FromTo != nil
}
