// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/istsos/sta-go/internal/model"
)

// Update applies a partial update. Properties present in the payload replace
// the stored values; absent properties are untouched. To-one navigations may
// be rebound by reference; stub arrays rebind one-to-many children onto this
// parent; rebinding a Thing's Locations records a HistoricalLocation.
func (m *Mutator) Update(ctx context.Context, entityName string, id int64, payload Payload) error {
	entity := model.MustLookup(entityName)
	return m.inTx(ctx, func(tx pgx.Tx) error {
		record := goqu.Record{}
		var relinkLocations []int64
		relink := false

		type childRebind struct {
			rel model.Relationship
			ids []int64
		}
		var rebinds []childRebind

		for key, raw := range payload {
			if key == "@iot.id" {
				continue
			}
			if rel, ok := model.LookupRelationship(entity.Name, key); ok {
				switch {
				case rel.Cardinality == model.ManyToOne:
					// commits are immutable provenance records, so an update
					// creates a fresh one inline; other navigations rebind by
					// reference only
					var relatedID int64
					var err error
					if rel.Target == model.Commit {
						relatedID, err = m.resolveRelated(ctx, tx, rel, raw, nil)
					} else {
						relatedID, err = m.refID(ctx, tx, rel, raw)
					}
					if err != nil {
						return err
					}
					record[rel.FKColumn] = relatedID
				case entity.Name == model.Thing && rel.Target == model.Location:
					ids, err := m.refIDList(ctx, tx, rel, raw)
					if err != nil {
						return err
					}
					relinkLocations, relink = ids, true
				case rel.Cardinality == model.OneToMany:
					ids, err := m.refIDList(ctx, tx, rel, raw)
					if err != nil {
						return err
					}
					rebinds = append(rebinds, childRebind{rel: rel, ids: ids})
				default:
					return &PayloadError{Detail: fmt.Sprintf("%s cannot be modified through a %s update", key, entity.Name)}
				}
				continue
			}
			if entity.Name == model.Observation && key == "result" {
				result, err := model.ParseResult(raw)
				if err != nil {
					return &PayloadError{Detail: err.Error()}
				}
				s, n, b, j := result.ColumnValues()
				record[model.ResultStringColumn] = s
				record[model.ResultNumberColumn] = n
				record[model.ResultBooleanColumn] = b
				record[model.ResultJSONColumn] = j
				record[model.ResultTypeColumn] = int(result.Type)
				continue
			}
			value, err := m.columnValue(entity, key, raw)
			if err != nil {
				return err
			}
			record[model.Column(key)] = value
		}

		if len(record) > 0 {
			sql, args, err := dialect.Update(entity.Table).Prepared(true).
				Set(record).Where(goqu.C("id").Eq(id)).Returning(goqu.C("id")).ToSQL()
			if err != nil {
				return fmt.Errorf("build update for %s: %w", entity.Table, err)
			}
			var updated int64
			if err := tx.QueryRow(ctx, sql, args...).Scan(&updated); err == pgx.ErrNoRows {
				return &NotFoundError{Entity: entity.Name, ID: id}
			} else if err != nil {
				return fmt.Errorf("update %s(%d): %w", entity.Name, id, err)
			}
		} else if !relink && len(rebinds) == 0 {
			return &PayloadError{Detail: "update payload is empty"}
		} else if err := m.verifyExists(ctx, tx, entity.Name, id); err != nil {
			return err
		}

		if relink {
			commitID, _ := record["commit_id"].(int64)
			if err := m.linkThingLocations(ctx, tx, id, relinkLocations, time.Now().UTC(), commitID); err != nil {
				return err
			}
		}

		for _, rb := range rebinds {
			if err := m.rebindChildren(ctx, tx, rb.rel, id, rb.ids); err != nil {
				return err
			}
		}

		if entity.Name == model.Observation {
			return m.recomputeDatastreamOf(ctx, tx, id)
		}
		return nil
	})
}

// refID resolves a `{"@iot.id": n}` navigation reference. Updates accept
// references only, not inline entities.
func (m *Mutator) refID(ctx context.Context, tx pgx.Tx, rel model.Relationship, raw json.RawMessage) (int64, error) {
	var ref struct {
		ID *int64 `json:"@iot.id"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ID == nil {
		return 0, &PayloadError{Detail: fmt.Sprintf("%s must be an {\"@iot.id\": n} reference", rel.Name)}
	}
	if err := m.verifyExists(ctx, tx, rel.Target, *ref.ID); err != nil {
		return 0, err
	}
	return *ref.ID, nil
}

func (m *Mutator) refIDList(ctx context.Context, tx pgx.Tx, rel model.Relationship, raw json.RawMessage) ([]int64, error) {
	var refs []json.RawMessage
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, &PayloadError{Detail: fmt.Sprintf("%s must be an array of references", rel.Name)}
	}
	ids := make([]int64, 0, len(refs))
	for _, r := range refs {
		id, err := m.refID(ctx, tx, rel, r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// rebindChildren points each referenced child's foreign key at the parent.
// Moving observations between datastreams invalidates the derived state of
// both the old and the new owner, so those are rebuilt afterwards.
func (m *Mutator) rebindChildren(ctx context.Context, tx pgx.Tx, rel model.Relationship, parentID int64, childIDs []int64) error {
	target := model.MustLookup(rel.Target)
	affected := map[int64]bool{}
	for _, childID := range childIDs {
		if rel.Target == model.Observation {
			var prev int64
			if err := tx.QueryRow(ctx,
				`SELECT datastream_id FROM "observation" WHERE id = $1`, childID).Scan(&prev); err != nil {
				return fmt.Errorf("resolve datastream of observation %d: %w", childID, err)
			}
			affected[prev] = true
		}
		if _, err := tx.Exec(ctx, rebindSQL(rel, target), parentID, childID); err != nil {
			return fmt.Errorf("rebind %s: %w", rel.Name, err)
		}
	}
	if rel.Target == model.Observation {
		affected[parentID] = true
		for dsID := range affected {
			if err := m.recomputeDatastream(ctx, tx, dsID); err != nil {
				return err
			}
		}
	}
	return nil
}

func rebindSQL(rel model.Relationship, target *model.Entity) string {
	return fmt.Sprintf(`UPDATE %q SET %s = $1 WHERE id = $2`, target.Table, rel.FKColumn)
}

// recomputeDatastreamOf rebuilds the derived state of the datastream owning
// the observation.
func (m *Mutator) recomputeDatastreamOf(ctx context.Context, tx pgx.Tx, observationID int64) error {
	var datastreamID int64
	err := tx.QueryRow(ctx,
		`SELECT datastream_id FROM "observation" WHERE id = $1`, observationID).Scan(&datastreamID)
	if err == pgx.ErrNoRows {
		return &NotFoundError{Entity: model.Observation, ID: observationID}
	}
	if err != nil {
		return err
	}
	return m.recomputeDatastream(ctx, tx, datastreamID)
}
