// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/logging"
	"github.com/istsos/sta-go/internal/middleware"
	"github.com/istsos/sta-go/internal/model"
)

var dialect = goqu.Dialect("postgres")

// Payload is a decoded request body: property and navigation names to raw
// JSON values.
type Payload map[string]json.RawMessage

// Mutator implements the write side: deep insert, partial update, delete,
// and the Observation ingest path. Every public method runs in one
// transaction on the write pool.
type Mutator struct {
	db          *DB
	epsg        int
	stAggregate string
	versioning  bool
	setRole     bool
}

// NewMutator returns a Mutator for the configured service.
func NewMutator(db *DB, cfg *config.Config) *Mutator {
	return &Mutator{
		db:          db,
		epsg:        cfg.Query.EPSG,
		stAggregate: cfg.Query.STAggregate,
		versioning:  cfg.Versioning.Enabled,
		setRole:     cfg.Security.Authorization,
	}
}

// Create inserts the entity with all nested and referenced related entities
// and returns the new id. parentFK carries the foreign key of a contextual
// create (POST to a navigation collection), nil otherwise.
func (m *Mutator) Create(ctx context.Context, entityName string, payload Payload, parentFK map[string]int64) (int64, error) {
	var id int64
	err := m.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		id, err = m.create(ctx, tx, entityName, payload, parentFK)
		return err
	})
	return id, err
}

// inTx runs fn in a write transaction, translating driver errors. With
// authorization enabled the transaction assumes the caller's database role,
// so row security and grants apply to the authenticated user.
func (m *Mutator) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := m.db.write.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	rollback := func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && rbErr != pgx.ErrTxClosed {
			logging.Warn().Err(rbErr).Msg("Rollback failed")
		}
	}
	role, assume := m.transactionRole(ctx)
	if assume {
		if _, err := tx.Exec(ctx, "SET ROLE "+pgx.Identifier{role}.Sanitize()); err != nil {
			rollback()
			return fmt.Errorf("set role %s: %w", role, err)
		}
	}
	if err := fn(tx); err != nil {
		rollback()
		return translateError(err)
	}
	if assume {
		if _, err := tx.Exec(ctx, "RESET ROLE"); err != nil {
			rollback()
			return fmt.Errorf("reset role: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// transactionRole returns the database role to assume for the request, if
// any. Anonymous callers and disabled authorization keep the pool's role.
func (m *Mutator) transactionRole(ctx context.Context) (string, bool) {
	if !m.setRole {
		return "", false
	}
	user := middleware.GetUser(ctx)
	if user == "" || user == "anonymous" {
		return "", false
	}
	return user, true
}

// create is the recursive deep-insert worker.
func (m *Mutator) create(ctx context.Context, tx pgx.Tx, entityName string, payload Payload, parentFK map[string]int64) (int64, error) {
	entity := model.MustLookup(entityName)
	if entity.Name == model.Observation {
		return m.createObservation(ctx, tx, payload, parentFK)
	}

	record := goqu.Record{}
	for column, id := range parentFK {
		record[column] = id
	}

	// provenance resolves before every other navigation so inline-created
	// related entities inherit the same commit
	commitRel, hasCommit := model.LookupRelationship(entity.Name, "Commit")
	if hasCommit {
		if raw, ok := payload["Commit"]; ok {
			commitID, err := m.resolveRelated(ctx, tx, commitRel, raw, nil)
			if err != nil {
				return 0, err
			}
			record[commitRel.FKColumn] = commitID
		}
	}

	// related entities created after the row exists
	type pendingChildren struct {
		rel   model.Relationship
		items []Payload
	}
	type pendingLinks struct {
		rel model.Relationship
		ids []int64
	}
	var children []pendingChildren
	var links []pendingLinks
	var linkedLocations []int64

	for key, raw := range payload {
		if key == "@iot.id" || (key == "Commit" && hasCommit) {
			continue
		}
		if rel, ok := model.LookupRelationship(entity.Name, key); ok {
			switch rel.Cardinality {
			case model.ManyToOne:
				relatedID, err := m.resolveRelated(ctx, tx, rel, raw, commitContext(record, rel.Target))
				if err != nil {
					return 0, err
				}
				record[rel.FKColumn] = relatedID
			case model.OneToMany:
				items, err := decodeRelatedList(key, raw)
				if err != nil {
					return 0, err
				}
				children = append(children, pendingChildren{rel: rel, items: items})
			case model.ManyToMany:
				ids, err := m.resolveRelatedList(ctx, tx, rel, raw, commitContext(record, rel.Target))
				if err != nil {
					return 0, err
				}
				if entity.Name == model.Thing && rel.Target == model.Location {
					linkedLocations = ids
					continue
				}
				links = append(links, pendingLinks{rel: rel, ids: ids})
			}
			continue
		}
		value, err := m.columnValue(entity, key, raw)
		if err != nil {
			return 0, err
		}
		record[model.Column(key)] = value
	}

	if err := checkRequired(entity, payload, record); err != nil {
		return 0, err
	}

	id, err := m.insertRecord(ctx, tx, entity.Table, record)
	if err != nil {
		return 0, err
	}

	if len(linkedLocations) > 0 {
		commitID, _ := record["commit_id"].(int64)
		if err := m.linkThingLocations(ctx, tx, id, linkedLocations, time.Now().UTC(), commitID); err != nil {
			return 0, err
		}
	}
	for _, pl := range links {
		for _, targetID := range pl.ids {
			if _, err := tx.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %q (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				pl.rel.LinkTable, pl.rel.LinkOwnerFK, pl.rel.LinkTargetFK), id, targetID); err != nil {
				return 0, fmt.Errorf("link %s: %w", pl.rel.Name, err)
			}
		}
	}

	for _, pc := range children {
		fk := map[string]int64{pc.rel.FKColumn: id}
		for column, value := range commitContext(record, pc.rel.Target) {
			fk[column] = value
		}
		for _, item := range pc.items {
			if _, err := m.create(ctx, tx, pc.rel.Target, item, fk); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

// commitContext carries the row's commit forward into a related create, when
// the related entity is itself versioned.
func commitContext(record goqu.Record, target string) map[string]int64 {
	commitID, ok := record["commit_id"].(int64)
	if !ok {
		return nil
	}
	if _, ok := model.LookupRelationship(target, "Commit"); !ok {
		return nil
	}
	return map[string]int64{"commit_id": commitID}
}

// insertRecord runs a prepared INSERT ... RETURNING id.
func (m *Mutator) insertRecord(ctx context.Context, tx pgx.Tx, table string, record goqu.Record) (int64, error) {
	sql, args, err := dialect.Insert(table).Prepared(true).Rows(record).Returning(goqu.C("id")).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert for %s: %w", table, err)
	}
	var id int64
	if err := tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

// resolveRelated turns a to-one navigation value into an id: `{"@iot.id": n}`
// references an existing entity (verified), an object without @iot.id is
// created inline with the inherited foreign keys. Mixing @iot.id with other
// properties is neither, so it is rejected.
func (m *Mutator) resolveRelated(ctx context.Context, tx pgx.Tx, rel model.Relationship, raw json.RawMessage, inherit map[string]int64) (int64, error) {
	var item Payload
	if err := json.Unmarshal(raw, &item); err != nil {
		return 0, &PayloadError{Detail: fmt.Sprintf("%s must be an object", rel.Name)}
	}
	if idRaw, ok := item["@iot.id"]; ok {
		if len(item) > 1 {
			return 0, &PayloadError{Detail: fmt.Sprintf(
				"%s mixes @iot.id with other properties; send a pure reference or a full entity", rel.Name)}
		}
		var id int64
		if err := json.Unmarshal(idRaw, &id); err != nil {
			return 0, &PayloadError{Detail: fmt.Sprintf("%s @iot.id must be an integer", rel.Name)}
		}
		if err := m.verifyExists(ctx, tx, rel.Target, id); err != nil {
			return 0, err
		}
		return id, nil
	}
	return m.create(ctx, tx, rel.Target, item, inherit)
}

// resolveRelatedList resolves a to-many navigation value, a JSON array of
// references or inline entities.
func (m *Mutator) resolveRelatedList(ctx context.Context, tx pgx.Tx, rel model.Relationship, raw json.RawMessage, inherit map[string]int64) ([]int64, error) {
	items, err := decodeRelatedList(rel.Name, raw)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := m.resolveRelated(ctx, tx, rel, mustMarshal(item), inherit)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func decodeRelatedList(name string, raw json.RawMessage) ([]Payload, error) {
	var items []Payload
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &PayloadError{Detail: fmt.Sprintf("%s must be an array of objects", name)}
	}
	return items, nil
}

func mustMarshal(p Payload) json.RawMessage {
	b, _ := json.Marshal(p)
	return b
}

// verifyExists confirms a referenced entity exists.
func (m *Mutator) verifyExists(ctx context.Context, tx pgx.Tx, entityName string, id int64) error {
	entity := model.MustLookup(entityName)
	var one int
	err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %q WHERE id = $1`, entity.Table), id).Scan(&one)
	if err == pgx.ErrNoRows {
		return &RelatedNotFoundError{Entity: entityName, ID: id}
	}
	return err
}

// linkThingLocations replaces the Thing's location links and records a
// HistoricalLocation for the change, stamped with the commit when one exists.
func (m *Mutator) linkThingLocations(ctx context.Context, tx pgx.Tx, thingID int64, locationIDs []int64, at time.Time, commitID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM "thing_location" WHERE thing_id = $1`, thingID); err != nil {
		return fmt.Errorf("unlink locations: %w", err)
	}
	for _, locID := range locationIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO "thing_location" (thing_id, location_id) VALUES ($1, $2)`, thingID, locID); err != nil {
			return fmt.Errorf("link location: %w", err)
		}
	}

	hlRecord := goqu.Record{
		"time":     at,
		"thing_id": thingID,
	}
	if commitID != 0 {
		hlRecord["commit_id"] = commitID
	}
	hlID, err := m.insertRecord(ctx, tx, "historicallocation", hlRecord)
	if err != nil {
		return err
	}
	for _, locID := range locationIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO "location_historicallocation" (location_id, historicallocation_id) VALUES ($1, $2)`,
			locID, hlID); err != nil {
			return fmt.Errorf("link historical location: %w", err)
		}
	}
	return nil
}

// derivedProperties are maintained by the engine and rejected in payloads.
var derivedProperties = map[string]map[string]bool{
	model.Datastream: {"observedArea": true, "phenomenonTime": true, "resultTime": true},
}

// columnValue converts one JSON property value into a bind value or SQL
// expression for its storage column.
func (m *Mutator) columnValue(entity *model.Entity, property string, raw json.RawMessage) (interface{}, error) {
	if derivedProperties[entity.Name][property] || property == "systemTimeValidity" {
		return nil, &PayloadError{Detail: fmt.Sprintf("%s is read-only", property)}
	}
	if !payloadProperty(entity, property) {
		return nil, &PayloadError{Detail: fmt.Sprintf("unknown property %q for %s", property, entity.Name)}
	}

	switch {
	case model.IsGeometry(entity.Name, property):
		return goqu.L("ST_SetSRID(ST_GeomFromGeoJSON(?), ?)", string(raw), m.epsg), nil
	case model.IsJSON(entity.Name, property):
		return []byte(raw), nil
	case instantColumn(entity.Name, property):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &PayloadError{Detail: fmt.Sprintf("%s must be an ISO-8601 string", property)}
		}
		ts, err := parseInstant(s)
		if err != nil {
			return nil, &PayloadError{Detail: fmt.Sprintf("invalid %s: %v", property, err)}
		}
		return ts, nil
	case model.IsRange(entity.Name, property):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &PayloadError{Detail: fmt.Sprintf("%s must be an ISO-8601 instant or interval", property)}
		}
		rng, err := parseTimeRange(s)
		if err != nil {
			return nil, &PayloadError{Detail: fmt.Sprintf("invalid %s: %v", property, err)}
		}
		return goqu.L("?::tstzrange", rng), nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &PayloadError{Detail: fmt.Sprintf("%s must be a string", property)}
		}
		return s, nil
	}
}

// payloadProperty reports whether the property is settable on the entity.
func payloadProperty(entity *model.Entity, property string) bool {
	for _, p := range entity.DefaultSelect {
		if p == property {
			return true
		}
	}
	return false
}

func instantColumn(entityName, property string) bool {
	switch entityName {
	case model.HistoricalLocation:
		return property == "time"
	case model.Commit:
		return property == "date"
	case model.Observation:
		return property == "resultTime"
	}
	return false
}

// checkRequired verifies the entity's required properties were provided,
// directly or through the record (contextual foreign keys count for
// navigations).
func checkRequired(entity *model.Entity, payload Payload, record goqu.Record) error {
	var missing []string
	for _, property := range entity.Required {
		if _, ok := payload[property]; ok {
			continue
		}
		if _, ok := record[model.Column(property)]; ok {
			continue
		}
		missing = append(missing, property)
	}
	if len(missing) > 0 {
		return &PayloadError{Detail: fmt.Sprintf("%s requires %s", entity.Name, strings.Join(missing, ", "))}
	}
	return nil
}

// parseInstant parses an ISO-8601 instant, normalized to UTC.
func parseInstant(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// parseTimeRange parses an ISO-8601 instant or `start/end` interval into
// tstzrange text input. Instants become zero-width inclusive ranges.
func parseTimeRange(s string) (string, error) {
	if from, to, ok := strings.Cut(s, "/"); ok {
		start, err := parseInstant(from)
		if err != nil {
			return "", err
		}
		end, err := parseInstant(to)
		if err != nil {
			return "", err
		}
		if end.Before(start) {
			return "", fmt.Errorf("interval end precedes start")
		}
		return rangeText(start, end), nil
	}
	ts, err := parseInstant(s)
	if err != nil {
		return "", err
	}
	return rangeText(ts, ts), nil
}

// rangeText renders an inclusive tstzrange literal.
func rangeText(start, end time.Time) string {
	const layout = "2006-01-02 15:04:05.999999-07"
	return "[" + start.Format(layout) + "," + end.Format(layout) + "]"
}
