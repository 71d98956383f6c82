// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package compiler

import (
	"fmt"
	"strings"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
)

// countPlan attaches the $count=true statements to stmt. The WHERE clause is
// rebuilt over fresh argument lists because the count statements bind only
// the filter arguments, not the projection's.
//
// FULL runs an exact count. LIMIT_ESTIMATE counts exactly up to the
// threshold and falls back to the planner estimate when the cap is hit.
// ESTIMATE_LIMIT asks the planner first and only runs the exact count when
// the estimate is below the threshold.
func (c *Compiler) countPlan(stmt *Statement, entity *model.Entity, path *ast.ResourcePath, q *ast.QueryNode) error {
	countArgs := &argList{}
	where, joins, err := c.conditions(countArgs, entity, path, q)
	if err != nil {
		return err
	}
	base := countBase(entity, q, where, joins)

	switch c.st.CountMode {
	case config.CountModeLimitEstimate:
		stmt.CountSQL = fmt.Sprintf("SELECT count(*) FROM (SELECT 1 %s LIMIT %d) capped",
			base, c.st.CountEstimateThreshold)
	default:
		stmt.CountSQL = "SELECT count(*) " + base
	}
	stmt.CountArgs = countArgs.args

	if c.st.CountMode == config.CountModeLimitEstimate || c.st.CountMode == config.CountModeEstimateLimit {
		estArgs := &argList{}
		where, joins, err := c.conditions(estArgs, entity, path, q)
		if err != nil {
			return err
		}
		stmt.EstimateSQL = "EXPLAIN (FORMAT JSON) SELECT 1 " + countBase(entity, q, where, joins)
		stmt.EstimateArgs = estArgs.args
	}
	return nil
}

// countBase renders `FROM ... [JOIN ...] [WHERE ...]` shared by the count
// variants.
func countBase(entity *model.Entity, q *ast.QueryNode, where string, joins []string) string {
	var sb strings.Builder
	sb.WriteString("FROM ")
	sb.WriteString(fromClause(entity, q, "e"))
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String()
}
