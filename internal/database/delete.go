// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/istsos/sta-go/internal/model"
)

// Delete removes the entity. Dependent rows cascade through foreign keys;
// derived state on affected datastreams is rebuilt afterwards.
func (m *Mutator) Delete(ctx context.Context, entityName string, id int64) error {
	entity := model.MustLookup(entityName)
	return m.inTx(ctx, func(tx pgx.Tx) error {
		affected, err := m.affectedDatastreams(ctx, tx, entity, id)
		if err != nil {
			return err
		}

		if entity.Name == model.FeatureOfInterest {
			// drop the generated-FOI cache pointing at the row
			if _, err := tx.Exec(ctx,
				`UPDATE "location" SET gen_foi_id = NULL WHERE gen_foi_id = $1`, id); err != nil {
				return fmt.Errorf("clear generated FOI cache: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = $1`, entity.Table), id)
		if err != nil {
			return fmt.Errorf("delete %s(%d): %w", entity.Name, id, err)
		}
		if tag.RowsAffected() == 0 {
			return &NotFoundError{Entity: entity.Name, ID: id}
		}

		for _, datastreamID := range affected {
			if err := m.recomputeDatastream(ctx, tx, datastreamID); err != nil {
				return err
			}
		}
		return nil
	})
}

// affectedDatastreams returns the datastreams whose derived state depends on
// the entity about to be deleted.
func (m *Mutator) affectedDatastreams(ctx context.Context, tx pgx.Tx, entity *model.Entity, id int64) ([]int64, error) {
	// only deletes that can leave a surviving datastream with stale state
	// matter; datastreams cascade away with their Thing, Sensor, and
	// ObservedProperty
	var query string
	switch entity.Name {
	case model.Observation:
		query = `SELECT datastream_id FROM "observation" WHERE id = $1`
	case model.FeatureOfInterest:
		query = `SELECT DISTINCT datastream_id FROM "observation" WHERE featuresofinterest_id = $1`
	default:
		return nil, nil
	}

	rows, err := tx.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("resolve affected datastreams: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var datastreamID int64
		if err := rows.Scan(&datastreamID); err != nil {
			return nil, err
		}
		ids = append(ids, datastreamID)
	}
	return ids, rows.Err()
}
