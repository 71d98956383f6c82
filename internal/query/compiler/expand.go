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

// expandEnvelope compiles one $expand item into a jsonb expression that is
// concatenated onto the parent object. To-one navigations inline the related
// entity; to-many navigations aggregate a page of related entities plus the
// optional <nav>@iot.count and <nav>@iot.nextLink keys.
func (b *builder) expandEnvelope(parent *model.Entity, parentAlias string, item *ast.ExpandItem) (string, error) {
	rel, ok := model.LookupRelationship(parent.Name, item.Name)
	if !ok {
		return "", &InvalidFieldError{Entity: parent.Name, Field: item.Name}
	}
	target := model.MustLookup(rel.Target)

	sub := item.Subquery
	if sub == nil {
		sub = &ast.QueryNode{IsSubquery: true}
	}
	if sub.IsDataArray() {
		return "", &ResultFormatError{Entity: target.Name}
	}

	if rel.Cardinality == model.ManyToOne {
		return b.toOneEnvelope(parentAlias, rel, target, sub)
	}
	return b.toManyEnvelope(parent, parentAlias, rel, target, sub, item.Name)
}

// toOneEnvelope inlines the single related entity, null when the navigation
// is unset.
func (b *builder) toOneEnvelope(parentAlias string, rel model.Relationship, target *model.Entity, sub *ast.QueryNode) (string, error) {
	alias := b.nextAlias()
	entity, err := b.entityJSON(target, alias, sub)
	if err != nil {
		return "", err
	}
	conds := []string{fmt.Sprintf(`%s."id" = %s.%s`, alias, parentAlias, quoteIdent(rel.FKColumn))}
	if cond, err := b.subConditions(target, alias, sub); err != nil {
		return "", err
	} else if cond != "" {
		conds = append(conds, cond)
	}
	return fmt.Sprintf("jsonb_build_object(%s, (SELECT %s FROM %s WHERE %s LIMIT 1))",
		quoteLiteral(rel.Name), entity, fromClause(target, sub, alias), strings.Join(conds, " AND ")), nil
}

// toManyEnvelope aggregates a page of related entities. The inner query
// fetches one row beyond the page so the aggregate can decide whether to
// attach <nav>@iot.nextLink without a second scan.
func (b *builder) toManyEnvelope(parent *model.Entity, parentAlias string, rel model.Relationship, target *model.Entity, sub *ast.QueryNode, nav string) (string, error) {
	alias := b.nextAlias()
	entity, err := b.entityJSON(target, alias, sub)
	if err != nil {
		return "", err
	}
	order, err := orderClause(target, alias, sub.OrderBy, sub.FromTo != nil)
	if err != nil {
		return "", err
	}

	top := b.st.TopValue
	if sub.Top != nil && sub.Top.Value < top {
		top = sub.Top.Value
	}
	skip := 0
	if sub.Skip != nil {
		skip = sub.Skip.Value
	}

	var conds []string
	var joinSQL string
	switch rel.Cardinality {
	case model.OneToMany:
		conds = append(conds, fmt.Sprintf(`%s.%s = %s."id"`, alias, quoteIdent(rel.FKColumn), parentAlias))
	case model.ManyToMany:
		link := b.nextAlias()
		joinSQL = fmt.Sprintf(" INNER JOIN %s %s ON %s.%s = %s.\"id\"",
			quoteIdent(rel.LinkTable), link, link, quoteIdent(rel.LinkTargetFK), alias)
		conds = append(conds, fmt.Sprintf(`%s.%s = %s."id"`, link, quoteIdent(rel.LinkOwnerFK), parentAlias))
	}
	if cond, err := b.subConditions(target, alias, sub); err != nil {
		return "", err
	} else if cond != "" {
		conds = append(conds, cond)
	}
	where := strings.Join(conds, " AND ")

	inner := fmt.Sprintf(
		"SELECT %s AS entity, row_number() OVER (ORDER BY %s) AS __rn FROM %s%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d",
		entity, order, fromClause(target, sub, alias), joinSQL, where, order, top+1, skip)

	// row_number counts from 1 over the full filtered set, so the page
	// boundary sits at skip+top
	limit := skip + top

	pieces := []string{fmt.Sprintf(
		"jsonb_build_object(%s, COALESCE(jsonb_agg(sub.entity ORDER BY sub.__rn) FILTER (WHERE sub.__rn <= %d), '[]'::jsonb))",
		quoteLiteral(nav), limit)}

	if sub.Count != nil && sub.Count.Value {
		countSQL := fmt.Sprintf("SELECT count(*) FROM %s%s WHERE %s",
			fromClause(target, sub, alias), joinSQL, where)
		pieces = append(pieces, fmt.Sprintf("jsonb_build_object(%s, (%s))",
			quoteLiteral(nav+"@iot.count"), countSQL))
	}

	nextURL := b.subNextLink(parent, parentAlias, nav, sub, skip+top, top)
	pieces = append(pieces, fmt.Sprintf(
		"CASE WHEN max(sub.__rn) > %d THEN jsonb_build_object(%s, %s) ELSE '{}'::jsonb END",
		limit, quoteLiteral(nav+"@iot.nextLink"), nextURL))

	return fmt.Sprintf("(SELECT %s FROM (%s) sub)", strings.Join(pieces, " || "), inner), nil
}

// subConditions collects the WHERE fragments a subquery adds on top of the
// relationship constraint: its $filter and its system-time condition.
func (b *builder) subConditions(target *model.Entity, alias string, sub *ast.QueryNode) (string, error) {
	var parts []string
	if sub.Filter != nil {
		cond, joins, err := compileFilter(b.args, target, alias, b.st.EPSG, sub.Filter.Expr)
		if err != nil {
			return "", err
		}
		// relationship traversals would need their own FROM items inside the
		// correlated subselect
		if len(joins) > 0 {
			return "", &PathCompileError{Reason: "relationship paths in expanded $filter are not supported"}
		}
		parts = append(parts, cond)
	}
	if cond := systemTimeCondition(b.args, alias, sub); cond != "" {
		parts = append(parts, cond)
	}
	return strings.Join(parts, " AND "), nil
}

// subNextLink builds the next-page URL of an expand envelope as an SQL text
// expression anchored on the parent's navigation link.
func (b *builder) subNextLink(parent *model.Entity, parentAlias, nav string, sub *ast.QueryNode, skip, top int) string {
	suffix := fmt.Sprintf(")/%s?$skip=%d&$top=%d", nav, skip, top)
	if sub.AsOf != nil {
		suffix += "&$as_of=" + sub.AsOf.Value.Format("2006-01-02T15:04:05Z")
	}
	return fmt.Sprintf(`%s || %s."id"::text || %s`,
		quoteLiteral(b.st.RootURL+"/"+parent.Plural+"("), parentAlias, quoteLiteral(suffix))
}
