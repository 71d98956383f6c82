// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package compiler translates a parsed resource path and query tree into a
// single parameterized SQL statement. Each result row is one JSON-serialized
// entity; $expand becomes correlated subselects aggregated into the parent
// object, so arbitrarily nested requests execute as exactly one statement.
package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
)

// Settings carries the service configuration the compiler depends on.
type Settings struct {
	// RootURL is the absolute service root, e.g. "http://host/istsos4/v1.1".
	RootURL string

	// TopValue is the default and maximum page size.
	TopValue int

	// EPSG is the SRID used for geometry literals in filters.
	EPSG int

	// CountMode selects how $count=true is answered (config.CountMode*).
	CountMode string

	// CountEstimateThreshold is the cutoff between exact and estimated counts
	// for the hybrid modes.
	CountEstimateThreshold int

	// Versioning echoes @iot.as_of on every response, defaulting to the
	// request instant when the query carries no $as_of.
	Versioning bool
}

// Statement is a compiled query ready for execution. SQL yields one text
// column per row: the JSON serialization of one entity (or of the property
// envelope for property paths).
type Statement struct {
	SQL  string
	Args []interface{}

	// Count plan. CountSQL and EstimateSQL carry their own argument lists
	// because they share only the WHERE clause with the main statement.
	Count        bool
	CountSQL     string
	CountArgs    []interface{}
	EstimateSQL  string
	EstimateArgs []interface{}

	// Pagination. SQL fetches Top+1 rows; the executor emits at most Top and
	// uses the extra row as the next-page probe.
	Top  int
	Skip int

	// NextLink is the absolute URL of the next page, valid when the probe row
	// came back. Empty for single-resource statements.
	NextLink string

	// Single marks statements addressing one resource; zero rows is a 404.
	Single bool

	// Ref, Property, RawValue describe $ref, property, and $value paths.
	Ref      bool
	Property string
	RawValue bool

	// DataArray marks the Observations dataArray shape; rows are group
	// envelopes instead of entities.
	DataArray bool

	// AsOf is echoed as @iot.as_of in collection envelopes.
	AsOf *time.Time

	// Entity is the addressed entity type.
	Entity *model.Entity
}

// Compiler builds statements for one service configuration.
type Compiler struct {
	st Settings
}

// New returns a Compiler with the given settings.
func New(st Settings) *Compiler {
	return &Compiler{st: st}
}

// builder is the per-compilation state: the bind argument list and an alias
// sequence for expand subselects.
type builder struct {
	st   Settings
	args *argList
	seq  int
}

func (b *builder) nextAlias() string {
	b.seq++
	return fmt.Sprintf("e%d", b.seq)
}

// Compile translates path and query into a Statement. rawQuery is the
// original query string, used verbatim (minus paging) to build nextLink.
func (c *Compiler) Compile(path *ast.ResourcePath, q *ast.QueryNode, rawQuery string) (*Statement, error) {
	if q == nil {
		q = &ast.QueryNode{}
	}
	entity := model.MustLookup(path.Last().Entity)

	single, err := isSingle(path)
	if err != nil {
		return nil, err
	}
	// a $from_to window yields one row per overlapping version, so even an
	// identified path pages through a collection envelope
	if q.FromTo != nil {
		single = false
	}

	if q.IsDataArray() {
		if entity.Name != model.Observation || single || path.Property != "" || path.Ref {
			return nil, &ResultFormatError{Entity: entity.Name}
		}
		return c.compileDataArray(path, q, rawQuery)
	}

	top, skip := c.page(q)
	b := &builder{st: c.st, args: &argList{}}

	where, joins, err := c.conditions(b.args, entity, path, q)
	if err != nil {
		return nil, err
	}

	var projection string
	switch {
	case path.Ref:
		projection = refProjection(c.st.RootURL, entity, "e")
	case path.Property != "" && path.Value:
		projection, err = rawValueExpr(entity, "e", path.Property)
	case path.Property != "":
		projection, err = propertyProjection(entity, "e", path.Property)
	default:
		projection, err = b.entityJSON(entity, "e", q)
	}
	if err != nil {
		return nil, err
	}

	asOf := c.effectiveAsOf(q)
	if single && asOf != nil && path.Property == "" && !path.Ref {
		// a single resource embeds the instant inside the object, since there
		// is no collection envelope to carry it
		projection = fmt.Sprintf("(%s || jsonb_build_object('@iot.as_of', %s))",
			projection, quoteLiteral(asOf.UTC().Format("2006-01-02T15:04:05Z")))
	}

	order, err := orderClause(entity, "e", q.OrderBy, q.FromTo != nil)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT (")
	sb.WriteString(projection)
	sb.WriteString(")::text FROM ")
	sb.WriteString(fromClause(entity, q, "e"))
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if single {
		sb.WriteString(" LIMIT 1")
	} else {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", top+1, skip)
	}

	stmt := &Statement{
		SQL:      sb.String(),
		Args:     b.args.args,
		Top:      top,
		Skip:     skip,
		Single:   single,
		Ref:      path.Ref,
		Property: path.Property,
		RawValue: path.Value,
		Entity:   entity,
		AsOf:     asOf,
	}
	if !single {
		stmt.NextLink = c.nextLink(path, rawQuery, skip+top, top)
		if q.Count != nil && q.Count.Value {
			stmt.Count = true
			if err := c.countPlan(stmt, entity, path, q); err != nil {
				return nil, err
			}
		}
	}
	return stmt, nil
}

// effectiveAsOf resolves the instant echoed as @iot.as_of: the explicit
// $as_of, or the request instant when versioning is on. $from_to responses
// enumerate versions and carry no single instant.
func (c *Compiler) effectiveAsOf(q *ast.QueryNode) *time.Time {
	if q.AsOf != nil {
		v := q.AsOf.Value
		return &v
	}
	if c.st.Versioning && q.FromTo == nil {
		v := time.Now().UTC().Truncate(time.Second)
		return &v
	}
	return nil
}

// page resolves the effective $top and $skip. Requested pages are capped at
// the configured maximum.
func (c *Compiler) page(q *ast.QueryNode) (top, skip int) {
	top = c.st.TopValue
	if q.Top != nil && q.Top.Value < top {
		top = q.Top.Value
	}
	if q.Skip != nil {
		skip = q.Skip.Value
	}
	return top, skip
}

// isSingle reports whether the path addresses one resource: a trailing id, or
// a to-one navigation off an identified parent. Intermediate segments must be
// identified.
func isSingle(path *ast.ResourcePath) (bool, error) {
	for _, seg := range path.Segments[:len(path.Segments)-1] {
		if seg.ID == nil {
			return false, &PathCompileError{Reason: "intermediate path segments must address a single resource by id"}
		}
	}
	last := path.Last()
	if last.ID != nil {
		return true, nil
	}
	if len(path.Segments) > 1 {
		prev := path.Segments[len(path.Segments)-2]
		rel, ok := model.LookupRelationship(prev.Entity, last.Nav)
		if !ok {
			return false, &InvalidFieldError{Entity: prev.Entity, Field: last.Nav}
		}
		return rel.Cardinality == model.ManyToOne, nil
	}
	return false, nil
}

// fromClause renders the root table, switching to the system-time shadow for
// TravelTime queries.
func fromClause(entity *model.Entity, q *ast.QueryNode, alias string) string {
	table := entity.Table
	if q.TravelTime {
		table = entity.TravelTimeTable()
	}
	return quoteIdent(table) + " " + alias
}

// conditions builds the WHERE clause: path constraints, the compiled $filter,
// and the system-time condition. The argument list is the caller's, so count
// statements can rebuild the same clause over their own list.
func (c *Compiler) conditions(args *argList, entity *model.Entity, path *ast.ResourcePath, q *ast.QueryNode) (string, []string, error) {
	var conds []string
	var joins []string

	if cond, err := pathConstraint(args, path); err != nil {
		return "", nil, err
	} else if cond != "" {
		conds = append(conds, cond)
	}

	if q.Filter != nil {
		cond, filterJoins, err := compileFilter(args, entity, "e", c.st.EPSG, q.Filter.Expr)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		joins = append(joins, filterJoins...)
	}

	if cond := systemTimeCondition(args, "e", q); cond != "" {
		conds = append(conds, cond)
	}

	return strings.Join(conds, " AND "), joins, nil
}

// systemTimeCondition restricts a TravelTime query to the versions valid at
// $as_of, or overlapping $from_to.
func systemTimeCondition(args *argList, alias string, q *ast.QueryNode) string {
	if !q.TravelTime {
		return ""
	}
	col := fmt.Sprintf("%s.%s", alias, quoteIdent("system_time_validity"))
	if q.AsOf != nil {
		return fmt.Sprintf("%s @> %s::timestamptz", col, args.add(q.AsOf.Value))
	}
	if q.FromTo != nil {
		return fmt.Sprintf("%s && tstzrange(%s::timestamptz, %s::timestamptz, '[]')",
			col, args.add(q.FromTo.From), args.add(q.FromTo.To))
	}
	return ""
}

// pathConstraint narrows the root table by the resource path: the trailing id
// and, for navigation paths, the link back to the identified parent.
func pathConstraint(args *argList, path *ast.ResourcePath) (string, error) {
	var conds []string
	last := path.Last()
	if last.ID != nil {
		conds = append(conds, fmt.Sprintf(`e."id" = %s`, args.add(*last.ID)))
	}
	if len(path.Segments) > 1 {
		prev := path.Segments[len(path.Segments)-2]
		rel, ok := model.LookupRelationship(prev.Entity, last.Nav)
		if !ok {
			return "", &InvalidFieldError{Entity: prev.Entity, Field: last.Nav}
		}
		prevEntity := model.MustLookup(prev.Entity)
		parentID := args.add(*prev.ID)
		switch rel.Cardinality {
		case model.OneToMany:
			conds = append(conds, fmt.Sprintf("e.%s = %s", quoteIdent(rel.FKColumn), parentID))
		case model.ManyToMany:
			conds = append(conds, fmt.Sprintf(`e."id" IN (SELECT %s FROM %s WHERE %s = %s)`,
				quoteIdent(rel.LinkTargetFK), quoteIdent(rel.LinkTable), quoteIdent(rel.LinkOwnerFK), parentID))
		case model.ManyToOne:
			conds = append(conds, fmt.Sprintf(`e."id" = (SELECT %s FROM %s WHERE "id" = %s)`,
				quoteIdent(rel.FKColumn), quoteIdent(prevEntity.Table), parentID))
		}
	}
	return strings.Join(conds, " AND "), nil
}

// entityJSON renders one entity of the aliased table as a jsonb expression:
// id, selfLink, the selected properties, navigation links, and any expand
// envelopes concatenated on top.
func (b *builder) entityJSON(entity *model.Entity, alias string, q *ast.QueryNode) (string, error) {
	selected := entity.DefaultSelect
	explicit := q.Select != nil
	if explicit {
		selected = q.Select.Items
	}

	expanded := map[string]bool{}
	if q.Expand != nil {
		for _, item := range q.Expand.Items {
			expanded[item.Name] = true
		}
	}

	var pairs []string
	for _, property := range selected {
		if property == "id" || property == "@iot.id" {
			pairs = append(pairs, `'@iot.id'`, fmt.Sprintf(`%s."id"`, alias))
			continue
		}
		if !validProperty(entity, property) {
			return "", &InvalidFieldError{Entity: entity.Name, Field: property}
		}
		expr, err := propertyExpr(entity, alias, property)
		if err != nil {
			return "", err
		}
		pairs = append(pairs, quoteLiteral(property), expr)
	}

	if q.TravelTime && !explicit {
		pairs = append(pairs, `'systemTimeValidity'`,
			isoRange(fmt.Sprintf("%s.%s", alias, quoteIdent("system_time_validity"))))
	}

	// self and navigation links are omitted under an explicit $select
	if !explicit {
		self := selfLinkExpr(b.st.RootURL, entity, alias)
		pairs = append(pairs, `'@iot.selfLink'`, self)
		for _, nav := range model.NavigationNames(entity.Name) {
			if expanded[nav] {
				continue
			}
			pairs = append(pairs, quoteLiteral(nav+"@iot.navigationLink"), b.navLinkExpr(entity, alias, nav, q))
		}
	}

	obj := "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"

	if q.Expand != nil {
		for _, item := range q.Expand.Items {
			env, err := b.expandEnvelope(entity, alias, item)
			if err != nil {
				return "", err
			}
			obj += " || " + env
		}
	}
	return "(" + obj + ")", nil
}

// selfLinkExpr builds `<root>/<Plural>(<id>)` as an SQL text expression.
func selfLinkExpr(root string, entity *model.Entity, alias string) string {
	return fmt.Sprintf(`%s || %s."id"::text || ')'`,
		quoteLiteral(root+"/"+entity.Plural+"("), alias)
}

// navLinkExpr builds the navigation link for nav off the aliased row. Under
// $as_of the link carries the instant so clients stay inside the snapshot;
// Commit links never do, since provenance is unversioned.
func (b *builder) navLinkExpr(entity *model.Entity, alias, nav string, q *ast.QueryNode) string {
	suffix := ")/" + nav
	if q.AsOf != nil {
		if rel, ok := model.LookupRelationship(entity.Name, nav); !ok || rel.Target != model.Commit {
			suffix += "?$as_of=" + q.AsOf.Value.Format("2006-01-02T15:04:05Z")
		}
	}
	return fmt.Sprintf(`%s || %s."id"::text || %s`,
		quoteLiteral(b.st.RootURL+"/"+entity.Plural+"("), alias, quoteLiteral(suffix))
}

// refProjection is the $ref shape: selfLink objects only.
func refProjection(root string, entity *model.Entity, alias string) string {
	return fmt.Sprintf("jsonb_build_object('@iot.selfLink', %s)", selfLinkExpr(root, entity, alias))
}

// propertyProjection is the `{"<name>": <value>}` shape of property paths.
func propertyProjection(entity *model.Entity, alias, property string) (string, error) {
	if !validProperty(entity, property) {
		return "", &InvalidFieldError{Entity: entity.Name, Field: property}
	}
	expr, err := propertyExpr(entity, alias, property)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("jsonb_build_object(%s, %s)", quoteLiteral(property), expr), nil
}

// instantColumns lists the timestamp (non-range) datetime properties.
var instantColumns = map[string]map[string]bool{
	model.Observation:        {"resultTime": true},
	model.HistoricalLocation: {"time": true},
	model.Commit:             {"date": true},
}

// propertyExpr renders one JSON-surface property of the aliased row as a
// value suitable for jsonb_build_object.
func propertyExpr(entity *model.Entity, alias, property string) (string, error) {
	if property == "result" && entity.Name == model.Observation {
		return resultExpr(alias), nil
	}
	col := fmt.Sprintf("%s.%s", alias, quoteIdent(model.Column(property)))
	switch {
	case model.IsGeometry(entity.Name, property):
		return fmt.Sprintf("ST_AsGeoJSON(%s)::jsonb", col), nil
	case model.IsRange(entity.Name, property):
		if entity.Name == model.Observation && property == "phenomenonTime" {
			return isoRangeOrInstant(col), nil
		}
		return isoRange(col), nil
	case instantColumns[entity.Name][property]:
		return isoTimestamp(col), nil
	default:
		return col, nil
	}
}

// resultExpr reassembles Observation.result from the typed columns.
func resultExpr(alias string) string {
	t := func(col string) string { return fmt.Sprintf("%s.%s", alias, quoteIdent(col)) }
	return fmt.Sprintf(
		"CASE %s WHEN %d THEN to_jsonb(%s) WHEN %d THEN to_jsonb(%s) WHEN %d THEN %s WHEN %d THEN to_jsonb(%s) END",
		t(model.ResultTypeColumn),
		int(model.ResultTypeNumber), t(model.ResultNumberColumn),
		int(model.ResultTypeBoolean), t(model.ResultBooleanColumn),
		int(model.ResultTypeJSON), t(model.ResultJSONColumn),
		int(model.ResultTypeString), t(model.ResultStringColumn))
}

// rawValueExpr renders the bare text of a property for $value paths.
func rawValueExpr(entity *model.Entity, alias, property string) (string, error) {
	if !validProperty(entity, property) {
		return "", &InvalidFieldError{Entity: entity.Name, Field: property}
	}
	if property == "result" && entity.Name == model.Observation {
		return resultExpr(alias) + " #>> '{}'", nil
	}
	expr, err := propertyExpr(entity, alias, property)
	if err != nil {
		return "", err
	}
	if model.IsJSON(entity.Name, property) || model.IsGeometry(entity.Name, property) {
		return "(" + expr + ")::text", nil
	}
	return expr + "::text", nil
}

// orderClause renders $orderby, defaulting to id and always appending the id
// tiebreak so pagination is stable. Text properties order under the "C"
// collation. systemTime adds a version tiebreak for $from_to statements,
// where one id occurs once per overlapping version.
func orderClause(entity *model.Entity, alias string, ob *ast.OrderByNode, systemTime bool) (string, error) {
	var versionTiebreak string
	if systemTime {
		versionTiebreak = fmt.Sprintf(`, %s.%s ASC`, alias, quoteIdent("system_time_validity"))
	}
	if ob == nil || len(ob.Items) == 0 {
		return fmt.Sprintf(`%s."id" ASC`, alias) + versionTiebreak, nil
	}
	var terms []string
	byID := false
	for _, item := range ob.Items {
		if !validProperty(entity, item.Property) {
			return "", &InvalidFieldError{Entity: entity.Name, Field: item.Property}
		}
		var expr string
		if item.Property == "result" && entity.Name == model.Observation {
			// numeric results dominate ordering; mixed-type streams are rare
			expr = fmt.Sprintf("%s.%s", alias, quoteIdent(model.ResultNumberColumn))
		} else {
			expr = fmt.Sprintf("%s.%s", alias, quoteIdent(model.Column(item.Property)))
			if collatedTextProperties[item.Property] {
				expr += ` COLLATE "C"`
			}
		}
		dir := "ASC"
		if item.Desc {
			dir = "DESC"
		}
		terms = append(terms, expr+" "+dir)
		if item.Property == "id" {
			byID = true
		}
	}
	if !byID {
		terms = append(terms, fmt.Sprintf(`%s."id" ASC`, alias))
	}
	return strings.Join(terms, ", ") + versionTiebreak, nil
}

// nextLink rebuilds the request URL with paging replaced. Every other query
// option is echoed verbatim.
func (c *Compiler) nextLink(path *ast.ResourcePath, rawQuery string, skip, top int) string {
	var params []string
	if rawQuery != "" {
		for _, p := range strings.Split(rawQuery, "&") {
			if strings.HasPrefix(p, "$skip=") || strings.HasPrefix(p, "$top=") || p == "" {
				continue
			}
			params = append(params, p)
		}
	}
	params = append(params, fmt.Sprintf("$skip=%d", skip), fmt.Sprintf("$top=%d", top))
	return c.st.RootURL + pathEcho(path) + "?" + strings.Join(params, "&")
}

// pathEcho reconstructs the canonical resource path below the service root.
func pathEcho(path *ast.ResourcePath) string {
	var sb strings.Builder
	for i, seg := range path.Segments {
		sb.WriteByte('/')
		if i == 0 {
			sb.WriteString(model.MustLookup(seg.Entity).Plural)
		} else {
			sb.WriteString(seg.Nav)
		}
		if seg.ID != nil {
			fmt.Fprintf(&sb, "(%d)", *seg.ID)
		}
	}
	return sb.String()
}
