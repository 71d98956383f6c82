// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/istsos/sta-go/internal/config"
)

// extendDatastream advances the datastream's derived state after an insert:
// the phenomenonTime and resultTime hulls grow to cover the new observations,
// last_foi_id moves, and observedArea is re-aggregated when the feature of
// interest changed.
func (m *Mutator) extendDatastream(ctx context.Context, tx pgx.Tx, datastreamID, foiID int64) error {
	var lastFOI *int64
	err := tx.QueryRow(ctx, `
		UPDATE "datastream" d SET
			phenomenon_time = h.phenomenon_hull,
			result_time = h.result_hull,
			last_foi_id = $2
		FROM (
			SELECT
				tstzrange(min(lower(o.phenomenon_time)), max(upper(o.phenomenon_time)), '[]') AS phenomenon_hull,
				CASE WHEN min(o.result_time) IS NULL THEN NULL
					 ELSE tstzrange(min(o.result_time), max(o.result_time), '[]') END AS result_hull
			FROM "observation" o WHERE o.datastream_id = $1
		) h
		WHERE d.id = $1
		RETURNING (SELECT last_foi_id FROM "datastream" WHERE id = $1)`,
		datastreamID, foiID).Scan(&lastFOI)
	if err == pgx.ErrNoRows {
		return &RelatedNotFoundError{Entity: "Datastream", ID: datastreamID}
	}
	if err != nil {
		return fmt.Errorf("extend datastream %d: %w", datastreamID, err)
	}

	if lastFOI == nil || *lastFOI != foiID {
		return m.updateObservedArea(ctx, tx, datastreamID)
	}
	return nil
}

// recomputeDatastream rebuilds the derived state from scratch, used after
// observation updates and deletes where the hull may shrink. Datastreams
// left without observations fall back to NULL state.
func (m *Mutator) recomputeDatastream(ctx context.Context, tx pgx.Tx, datastreamID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE "datastream" d SET
			phenomenon_time = h.phenomenon_hull,
			result_time = h.result_hull,
			last_foi_id = h.last_foi
		FROM (
			SELECT
				CASE WHEN count(*) = 0 THEN NULL
					 ELSE tstzrange(min(lower(o.phenomenon_time)), max(upper(o.phenomenon_time)), '[]') END AS phenomenon_hull,
				CASE WHEN min(o.result_time) IS NULL THEN NULL
					 ELSE tstzrange(min(o.result_time), max(o.result_time), '[]') END AS result_hull,
				(SELECT o2.featuresofinterest_id FROM "observation" o2
				 WHERE o2.datastream_id = $1 ORDER BY o2.id DESC LIMIT 1) AS last_foi
			FROM "observation" o WHERE o.datastream_id = $1
		) h
		WHERE d.id = $1`, datastreamID)
	if err != nil {
		return fmt.Errorf("recompute datastream %d: %w", datastreamID, err)
	}
	return m.updateObservedArea(ctx, tx, datastreamID)
}

// updateObservedArea re-aggregates observedArea over the features of interest
// observed by the datastream. The aggregate is configurable: a convex hull of
// all geometries, or their bounding box.
func (m *Mutator) updateObservedArea(ctx context.Context, tx pgx.Tx, datastreamID int64) error {
	var aggregate string
	switch m.stAggregate {
	case config.STAggregateExtent:
		aggregate = fmt.Sprintf("ST_SetSRID(ST_Extent(f.feature)::geometry, %d)", m.epsg)
	default:
		aggregate = "ST_ConvexHull(ST_Collect(f.feature))"
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE "datastream" d SET observed_area = (
			SELECT %s
			FROM "featuresofinterest" f
			WHERE f.id IN (
				SELECT DISTINCT o.featuresofinterest_id
				FROM "observation" o WHERE o.datastream_id = $1
			)
		)
		WHERE d.id = $1`, aggregate), datastreamID)
	if err != nil {
		return fmt.Errorf("update observed area of datastream %d: %w", datastreamID, err)
	}
	return nil
}
