// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package compiler

import (
	"fmt"
	"strings"

	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
)

// dataArrayDefaultComponents is the component list when $select is absent.
var dataArrayDefaultComponents = []string{"id", "phenomenonTime", "resultTime", "result"}

// compileDataArray builds the $resultFormat=dataArray shape: observations
// grouped by datastream, each group an envelope with the datastream link, the
// component names, and the rows as positional arrays.
//
// Pagination applies to the underlying observations before grouping, so a
// page spanning several datastreams yields several envelopes. The page CTE
// fetches top+1 observations; the probe row is excluded from the groups but
// counted in the second result column, which is how the executor decides
// whether a next page exists.
func (c *Compiler) compileDataArray(path *ast.ResourcePath, q *ast.QueryNode, rawQuery string) (*Statement, error) {
	entity := model.MustLookup(model.Observation)
	top, skip := c.page(q)
	b := &builder{st: c.st, args: &argList{}}

	where, joins, err := c.conditions(b.args, entity, path, q)
	if err != nil {
		return nil, err
	}

	components := dataArrayDefaultComponents
	if q.Select != nil {
		components = q.Select.Items
	}

	names := make([]string, 0, len(components))
	exprs := make([]string, 0, len(components))
	for _, property := range components {
		if property == "id" || property == "@iot.id" {
			names = append(names, `'id'`)
			exprs = append(exprs, `e."id"`)
			continue
		}
		if !validProperty(entity, property) {
			return nil, &InvalidFieldError{Entity: entity.Name, Field: property}
		}
		expr, err := propertyExpr(entity, "e", property)
		if err != nil {
			return nil, err
		}
		names = append(names, quoteLiteral(property))
		exprs = append(exprs, expr)
	}

	order, err := orderClause(entity, "e", q.OrderBy, q.FromTo != nil)
	if err != nil {
		return nil, err
	}

	base := "SELECT e.* FROM " + fromClause(entity, q, "e")
	for _, j := range joins {
		base += " " + j
	}
	if where != "" {
		base += " WHERE " + where
	}
	base += fmt.Sprintf(" ORDER BY %s LIMIT %d OFFSET %d", order, top+1, skip)

	// __rn numbers the fetched page so the probe row is identifiable
	inner := fmt.Sprintf("SELECT e.*, row_number() OVER (ORDER BY %s) AS __rn FROM (%s) e", order, base)

	navLink := fmt.Sprintf(`%s || e."datastream_id"::text || ')'`,
		quoteLiteral(c.st.RootURL+"/Datastreams("))

	sql := fmt.Sprintf(
		"WITH page AS (%s) SELECT (jsonb_build_object("+
			"'Datastream@iot.navigationLink', %s, "+
			"'components', jsonb_build_array(%s), "+
			"'dataArray@iot.count', count(*), "+
			"'dataArray', jsonb_agg(jsonb_build_array(%s) ORDER BY %s)"+
			"))::text, (SELECT count(*) FROM page)::bigint"+
			` FROM page e WHERE e."__rn" <= %d GROUP BY e."datastream_id" ORDER BY e."datastream_id"`,
		inner, navLink, strings.Join(names, ", "), strings.Join(exprs, ", "), order, top)

	stmt := &Statement{
		SQL:       sql,
		Args:      b.args.args,
		Top:       top,
		Skip:      skip,
		DataArray: true,
		Entity:    entity,
		NextLink:  c.nextLink(path, rawQuery, skip+top, top),
	}
	stmt.AsOf = c.effectiveAsOf(q)
	if q.Count != nil && q.Count.Value {
		stmt.Count = true
		if err := c.countPlan(stmt, entity, path, q); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}
