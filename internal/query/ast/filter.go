// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package ast

// Expr is a node of the $filter expression tree. The concrete types form a
// closed sum; consumers walk them through the Visitor interface.
type Expr interface {
	Accept(v Visitor) (interface{}, error)
}

// Visitor dispatches over the filter expression sum type. The compiler's
// filter visitor returns SQL fragments; tests use lighter-weight visitors.
type Visitor interface {
	VisitBinary(e *BinaryExpr) (interface{}, error)
	VisitUnary(e *UnaryExpr) (interface{}, error)
	VisitCall(e *CallExpr) (interface{}, error)
	VisitMember(e *MemberExpr) (interface{}, error)
	VisitLiteral(e *LiteralExpr) (interface{}, error)
	VisitList(e *ListExpr) (interface{}, error)
}

// BinaryExpr is a logical, comparison, arithmetic, or membership operator.
// Op is the OData spelling: and, or, eq, ne, lt, gt, le, ge, add, sub, mul,
// div, mod, in.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) Accept(v Visitor) (interface{}, error) { return v.VisitBinary(e) }

// UnaryExpr is currently only "not".
type UnaryExpr struct {
	Op   string
	Expr Expr
}

func (e *UnaryExpr) Accept(v Visitor) (interface{}, error) { return v.VisitUnary(e) }

// CallExpr is a function application: string, datetime, math, or geospatial.
// Func is the OData spelling ("substringof", "geo.distance", "st_within", ...).
type CallExpr struct {
	Func string
	Args []Expr
}

func (e *CallExpr) Accept(v Visitor) (interface{}, error) { return v.VisitCall(e) }

// MemberExpr is a property reference, optionally traversing one level of
// relationship: Path is ["result"] or ["Datastream", "Sensor", "name"], where
// all but the last element are navigation properties.
type MemberExpr struct {
	Path []string
}

func (e *MemberExpr) Accept(v Visitor) (interface{}, error) { return v.VisitMember(e) }

// LiteralKind classifies a literal value.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralDateTime
	LiteralNull

	// LiteralGeometry is an OData geography'...'/geometry'...' literal; Value
	// holds the WKT between the quotes.
	LiteralGeometry
)

// LiteralExpr is a constant. Value holds the lexeme with string quotes
// stripped and escaped quotes unescaped.
type LiteralExpr struct {
	Kind  LiteralKind
	Value string
}

func (e *LiteralExpr) Accept(v Visitor) (interface{}, error) { return v.VisitLiteral(e) }

// ListExpr is the parenthesized value list of an "in" operator.
type ListExpr struct {
	Items []Expr
}

func (e *ListExpr) Accept(v Visitor) (interface{}, error) { return v.VisitList(e) }
