// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
	"github.com/istsos/sta-go/internal/query/filter"
)

// frag is the value type the filter visitor passes up the expression tree.
// Exactly one of member/literal is set for leaf nodes; composed nodes carry
// only sql.
type frag struct {
	sql     string
	member  *memberRef
	literal *ast.LiteralExpr
}

// memberRef records the resolved property behind a member expression so
// comparisons can special-case ranges and the polymorphic result.
type memberRef struct {
	entity   *model.Entity
	property string
	alias    string
}

// filterVisitor compiles a $filter expression tree to a parameterized SQL
// condition against the given table alias. Relationship traversals add inner
// joins to the join list, deduplicated by traversal path.
type filterVisitor struct {
	args   *argList
	entity *model.Entity
	alias  string
	epsg   int

	joinKeys []string
	joins    map[string]string // traversal path -> JOIN clause
	aliasSeq int
}

func newFilterVisitor(args *argList, entity *model.Entity, alias string, epsg int) *filterVisitor {
	return &filterVisitor{
		args:   args,
		entity: entity,
		alias:  alias,
		epsg:   epsg,
		joins:  map[string]string{},
	}
}

// compileFilter renders the expression and returns (condition, join clauses).
func compileFilter(args *argList, entity *model.Entity, alias string, epsg int, expr ast.Expr) (string, []string, error) {
	v := newFilterVisitor(args, entity, alias, epsg)
	out, err := expr.Accept(v)
	if err != nil {
		return "", nil, err
	}
	f := out.(frag)
	cond, err := v.asCondition(f)
	if err != nil {
		return "", nil, err
	}
	clauses := make([]string, 0, len(v.joinKeys))
	for _, k := range v.joinKeys {
		clauses = append(clauses, v.joins[k])
	}
	return cond, clauses, nil
}

// asCondition renders a fragment in boolean position. A bare boolean member
// (e.g. `$filter=resultQuality`) is not part of the supported subset.
func (v *filterVisitor) asCondition(f frag) (string, error) {
	if f.member != nil || f.literal != nil {
		return "", &filter.ParseError{Message: "expression is not a boolean condition"}
	}
	return f.sql, nil
}

func (v *filterVisitor) VisitBinary(e *ast.BinaryExpr) (interface{}, error) {
	switch e.Op {
	case "and", "or":
		return v.visitLogical(e)
	case "eq", "ne", "lt", "gt", "le", "ge":
		return v.visitComparison(e)
	case "add", "sub", "mul", "div", "mod":
		return v.visitArithmetic(e)
	case "in":
		return v.visitIn(e)
	}
	return nil, &filter.ParseError{Message: "unknown operator " + e.Op}
}

func (v *filterVisitor) visitLogical(e *ast.BinaryExpr) (interface{}, error) {
	lv, err := e.Left.Accept(v)
	if err != nil {
		return nil, err
	}
	rv, err := e.Right.Accept(v)
	if err != nil {
		return nil, err
	}
	left, err := v.asCondition(lv.(frag))
	if err != nil {
		return nil, err
	}
	right, err := v.asCondition(rv.(frag))
	if err != nil {
		return nil, err
	}
	op := strings.ToUpper(e.Op)
	return frag{sql: fmt.Sprintf("(%s %s %s)", left, op, right)}, nil
}

var sqlComparison = map[string]string{
	"eq": "=", "ne": "<>", "lt": "<", "gt": ">", "le": "<=", "ge": ">=",
}

func (v *filterVisitor) visitComparison(e *ast.BinaryExpr) (interface{}, error) {
	lv, err := e.Left.Accept(v)
	if err != nil {
		return nil, err
	}
	rv, err := e.Right.Accept(v)
	if err != nil {
		return nil, err
	}
	left, right := lv.(frag), rv.(frag)

	// null comparisons become IS [NOT] NULL
	if right.literal != nil && right.literal.Kind == ast.LiteralNull {
		if e.Op == "eq" {
			return frag{sql: fmt.Sprintf("%s IS NULL", left.sql)}, nil
		}
		if e.Op == "ne" {
			return frag{sql: fmt.Sprintf("%s IS NOT NULL", left.sql)}, nil
		}
		return nil, &filter.ParseError{Message: "null only supports eq/ne"}
	}

	// polymorphic Observation.result dispatches on the literal's JSON type
	if left.member != nil && left.member.property == "result" && left.member.entity.Name == model.Observation {
		return v.resultComparison(left.member, e.Op, right)
	}

	// range-valued members compare against instants through their bounds
	if left.member != nil && model.IsRange(left.member.entity.Name, left.member.property) {
		return v.rangeComparison(left, e.Op, right)
	}

	return frag{sql: fmt.Sprintf("%s %s %s", left.sql, sqlComparison[e.Op], right.sql)}, nil
}

// resultComparison emits a typed comparison guarded by result_type, so
// `result eq 3` matches only numeric results and `result eq 'ok'` only
// string results.
func (v *filterVisitor) resultComparison(m *memberRef, op string, right frag) (interface{}, error) {
	if right.literal == nil {
		return nil, &filter.ParseError{Message: "result comparisons require a literal"}
	}
	var resultType model.ResultType
	switch right.literal.Kind {
	case ast.LiteralNumber:
		resultType = model.ResultTypeNumber
	case ast.LiteralString:
		resultType = model.ResultTypeString
	case ast.LiteralBool:
		resultType = model.ResultTypeBoolean
	default:
		return nil, &filter.ParseError{Message: "result comparisons support number, string, and boolean literals"}
	}
	column := fmt.Sprintf("%s.%s", m.alias, quoteIdent(resultType.Column()))
	typeGuard := fmt.Sprintf("%s.%s = %d", m.alias, quoteIdent(model.ResultTypeColumn), int(resultType))
	return frag{sql: fmt.Sprintf("(%s AND %s %s %s)", typeGuard, column, sqlComparison[op], right.sql)}, nil
}

// rangeComparison maps instant comparisons onto tstzrange columns:
// eq is containment, lt/le test the upper bound, gt/ge the lower bound.
func (v *filterVisitor) rangeComparison(left frag, op string, right frag) (interface{}, error) {
	col := left.sql
	switch op {
	case "eq":
		return frag{sql: fmt.Sprintf("%s @> %s::timestamptz", col, right.sql)}, nil
	case "ne":
		return frag{sql: fmt.Sprintf("NOT (%s @> %s::timestamptz)", col, right.sql)}, nil
	case "lt":
		return frag{sql: fmt.Sprintf("upper(%s) < %s::timestamptz", col, right.sql)}, nil
	case "le":
		return frag{sql: fmt.Sprintf("upper(%s) <= %s::timestamptz", col, right.sql)}, nil
	case "gt":
		return frag{sql: fmt.Sprintf("lower(%s) > %s::timestamptz", col, right.sql)}, nil
	case "ge":
		return frag{sql: fmt.Sprintf("lower(%s) >= %s::timestamptz", col, right.sql)}, nil
	}
	return nil, &filter.ParseError{Message: "unsupported range comparison " + op}
}

var sqlArithmetic = map[string]string{
	"add": "+", "sub": "-", "mul": "*", "div": "/", "mod": "%",
}

func (v *filterVisitor) visitArithmetic(e *ast.BinaryExpr) (interface{}, error) {
	lv, err := e.Left.Accept(v)
	if err != nil {
		return nil, err
	}
	rv, err := e.Right.Accept(v)
	if err != nil {
		return nil, err
	}
	return frag{sql: fmt.Sprintf("(%s %s %s)", lv.(frag).sql, sqlArithmetic[e.Op], rv.(frag).sql)}, nil
}

func (v *filterVisitor) visitIn(e *ast.BinaryExpr) (interface{}, error) {
	lv, err := e.Left.Accept(v)
	if err != nil {
		return nil, err
	}
	list, ok := e.Right.(*ast.ListExpr)
	if !ok {
		return nil, &filter.ParseError{Message: "in requires a value list"}
	}
	items := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		iv, err := item.Accept(v)
		if err != nil {
			return nil, err
		}
		items = append(items, iv.(frag).sql)
	}
	return frag{sql: fmt.Sprintf("%s IN (%s)", lv.(frag).sql, strings.Join(items, ", "))}, nil
}

func (v *filterVisitor) VisitUnary(e *ast.UnaryExpr) (interface{}, error) {
	inner, err := e.Expr.Accept(v)
	if err != nil {
		return nil, err
	}
	cond, err := v.asCondition(inner.(frag))
	if err != nil {
		return nil, err
	}
	return frag{sql: fmt.Sprintf("NOT (%s)", cond)}, nil
}

func (v *filterVisitor) VisitMember(e *ast.MemberExpr) (interface{}, error) {
	entity := v.entity
	alias := v.alias

	// all but the last path element traverse relationships
	for i := 0; i < len(e.Path)-1; i++ {
		nav := e.Path[i]
		rel, ok := model.LookupRelationship(entity.Name, nav)
		if !ok {
			return nil, &InvalidFieldError{Entity: entity.Name, Field: nav}
		}
		alias = v.join(alias, entity, rel, strings.Join(e.Path[:i+1], "/"))
		entity = model.MustLookup(rel.Target)
	}

	property := e.Path[len(e.Path)-1]
	if !validProperty(entity, property) {
		return nil, &InvalidFieldError{Entity: entity.Name, Field: property}
	}

	sql := fmt.Sprintf("%s.%s", alias, quoteIdent(model.Column(property)))
	return frag{
		sql:    sql,
		member: &memberRef{entity: entity, property: property, alias: alias},
	}, nil
}

// join registers an inner join for the traversal (idempotent per path) and
// returns the alias of the joined table.
func (v *filterVisitor) join(fromAlias string, from *model.Entity, rel model.Relationship, key string) string {
	if clause, ok := v.joins[key]; ok {
		// alias is encoded at the end of the stored clause
		return clause[strings.LastIndex(clause, " ")+1:]
	}
	v.aliasSeq++
	alias := fmt.Sprintf("j%d", v.aliasSeq)
	target := model.MustLookup(rel.Target)

	var clause string
	switch rel.Cardinality {
	case model.ManyToOne:
		clause = fmt.Sprintf("INNER JOIN %s %s ON %s.id = %s.%s",
			quoteIdent(target.Table), alias, alias, fromAlias, quoteIdent(rel.FKColumn))
	case model.OneToMany:
		clause = fmt.Sprintf("INNER JOIN %s %s ON %s.%s = %s.id",
			quoteIdent(target.Table), alias, alias, quoteIdent(rel.FKColumn), fromAlias)
	case model.ManyToMany:
		v.aliasSeq++
		linkAlias := fmt.Sprintf("j%d", v.aliasSeq)
		clause = fmt.Sprintf("INNER JOIN %s %s ON %s.%s = %s.id INNER JOIN %s %s ON %s.id = %s.%s",
			quoteIdent(rel.LinkTable), linkAlias, linkAlias, quoteIdent(rel.LinkOwnerFK), fromAlias,
			quoteIdent(target.Table), alias, alias, linkAlias, quoteIdent(rel.LinkTargetFK))
	}

	// store with the target alias as the trailing word so re-traversals can
	// recover it
	v.joins[key] = clause + " " + alias
	v.joinKeys = append(v.joinKeys, key)
	return alias
}

func (v *filterVisitor) VisitLiteral(e *ast.LiteralExpr) (interface{}, error) {
	switch e.Kind {
	case ast.LiteralString:
		return frag{sql: v.args.add(e.Value), literal: e}, nil
	case ast.LiteralNumber:
		n, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return nil, &filter.ParseError{Message: "invalid number " + e.Value}
		}
		return frag{sql: v.args.add(n), literal: e}, nil
	case ast.LiteralBool:
		return frag{sql: v.args.add(e.Value == "true"), literal: e}, nil
	case ast.LiteralDateTime:
		ts, err := parseDateTimeLiteral(e.Value)
		if err != nil {
			return nil, &filter.ParseError{Message: "invalid datetime " + e.Value}
		}
		return frag{sql: v.args.add(ts) + "::timestamptz", literal: e}, nil
	case ast.LiteralNull:
		return frag{sql: "NULL", literal: e}, nil
	case ast.LiteralGeometry:
		return frag{sql: fmt.Sprintf("ST_GeomFromText(%s, %d)", v.args.add(e.Value), v.epsg), literal: e}, nil
	}
	return nil, &filter.ParseError{Message: "unknown literal kind"}
}

func parseDateTimeLiteral(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}

func (v *filterVisitor) VisitList(e *ast.ListExpr) (interface{}, error) {
	// lists are consumed by visitIn; a bare list is malformed
	return nil, &filter.ParseError{Message: "value list outside of in operator"}
}

func (v *filterVisitor) VisitCall(e *ast.CallExpr) (interface{}, error) {
	args := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		av, err := a.Accept(v)
		if err != nil {
			return nil, err
		}
		args = append(args, av.(frag).sql)
	}

	switch e.Func {
	// string functions
	case "substringof":
		return frag{sql: fmt.Sprintf("position(%s in %s) > 0", args[0], args[1])}, nil
	case "endswith":
		return frag{sql: fmt.Sprintf("%s LIKE '%%' || %s", args[0], args[1])}, nil
	case "startswith":
		return frag{sql: fmt.Sprintf("%s LIKE %s || '%%'", args[0], args[1])}, nil
	case "length":
		return frag{sql: fmt.Sprintf("char_length(%s)", args[0])}, nil
	case "indexof":
		// OData indexof is zero-based
		return frag{sql: fmt.Sprintf("position(%s in %s) - 1", args[1], args[0])}, nil
	case "substring":
		if len(args) == 3 {
			return frag{sql: fmt.Sprintf("substr(%s, (%s)::int + 1, (%s)::int)", args[0], args[1], args[2])}, nil
		}
		return frag{sql: fmt.Sprintf("substr(%s, (%s)::int + 1)", args[0], args[1])}, nil
	case "tolower":
		return frag{sql: fmt.Sprintf("lower(%s)", args[0])}, nil
	case "toupper":
		return frag{sql: fmt.Sprintf("upper(%s)", args[0])}, nil
	case "trim":
		return frag{sql: fmt.Sprintf("btrim(%s)", args[0])}, nil
	case "concat":
		return frag{sql: "(" + strings.Join(args, " || ") + ")"}, nil

	// datetime functions
	case "year", "month", "day", "hour", "minute":
		return frag{sql: fmt.Sprintf("date_part('%s', %s)::int", e.Func, args[0])}, nil
	case "second":
		return frag{sql: fmt.Sprintf("floor(date_part('second', %s))::int", args[0])}, nil
	case "fractionalseconds":
		return frag{sql: fmt.Sprintf("(date_part('second', %s) - floor(date_part('second', %s)))", args[0], args[0])}, nil
	case "date":
		return frag{sql: fmt.Sprintf("(%s)::date", args[0])}, nil
	case "time":
		return frag{sql: fmt.Sprintf("(%s)::time", args[0])}, nil
	case "now":
		return frag{sql: "now()"}, nil
	case "totaloffsetminutes":
		return frag{sql: fmt.Sprintf("(date_part('timezone', %s) / 60)::int", args[0])}, nil

	// math functions
	case "round":
		return frag{sql: fmt.Sprintf("round(%s)", args[0])}, nil
	case "floor":
		return frag{sql: fmt.Sprintf("floor(%s)", args[0])}, nil
	case "ceiling":
		return frag{sql: fmt.Sprintf("ceil(%s)", args[0])}, nil

	// geospatial
	case "geo.distance":
		return frag{sql: fmt.Sprintf("ST_Distance(%s, %s)", args[0], args[1])}, nil
	case "geo.length":
		return frag{sql: fmt.Sprintf("ST_Length(%s)", args[0])}, nil
	case "geo.intersects", "st_intersects":
		return frag{sql: fmt.Sprintf("ST_Intersects(%s, %s)", args[0], args[1])}, nil
	case "st_equals":
		return frag{sql: fmt.Sprintf("ST_Equals(%s, %s)", args[0], args[1])}, nil
	case "st_disjoint":
		return frag{sql: fmt.Sprintf("ST_Disjoint(%s, %s)", args[0], args[1])}, nil
	case "st_touches":
		return frag{sql: fmt.Sprintf("ST_Touches(%s, %s)", args[0], args[1])}, nil
	case "st_within":
		return frag{sql: fmt.Sprintf("ST_Within(%s, %s)", args[0], args[1])}, nil
	case "st_overlaps":
		return frag{sql: fmt.Sprintf("ST_Overlaps(%s, %s)", args[0], args[1])}, nil
	case "st_crosses":
		return frag{sql: fmt.Sprintf("ST_Crosses(%s, %s)", args[0], args[1])}, nil
	case "st_contains":
		return frag{sql: fmt.Sprintf("ST_Contains(%s, %s)", args[0], args[1])}, nil
	case "st_relate":
		return frag{sql: fmt.Sprintf("ST_Relate(%s, %s, %s)", args[0], args[1], args[2])}, nil
	}
	return nil, &filter.UnsupportedFunctionError{Name: e.Func}
}

// validProperty reports whether the property is addressable on the entity in
// a filter or select.
func validProperty(entity *model.Entity, property string) bool {
	if property == "id" || property == "@iot.id" {
		return true
	}
	if property == "systemTimeValidity" {
		return true
	}
	for _, p := range entity.DefaultSelect {
		if p == property {
			return true
		}
	}
	return false
}
