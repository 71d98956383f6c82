// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/logging"
)

// createTables holds the base DDL. Statements are idempotent so startup can
// run them unconditionally.
var createTables = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,

	`CREATE TABLE IF NOT EXISTS "commit" (
		id bigserial PRIMARY KEY,
		author text NOT NULL,
		encoding_type text,
		message text NOT NULL,
		date timestamptz NOT NULL DEFAULT now(),
		action_type text
	)`,

	`CREATE TABLE IF NOT EXISTS "thing" (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		description text NOT NULL,
		properties jsonb,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "location" (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		description text NOT NULL,
		encoding_type text NOT NULL,
		location geometry NOT NULL,
		properties jsonb,
		gen_foi_id bigint,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "historicallocation" (
		id bigserial PRIMARY KEY,
		time timestamptz NOT NULL,
		thing_id bigint NOT NULL REFERENCES "thing"(id) ON DELETE CASCADE,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "sensor" (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		description text NOT NULL,
		encoding_type text NOT NULL,
		metadata jsonb NOT NULL,
		properties jsonb,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "observedproperty" (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		definition text NOT NULL,
		description text NOT NULL,
		properties jsonb,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "datastream" (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		description text NOT NULL,
		unit_of_measurement jsonb NOT NULL,
		observation_type text NOT NULL,
		observed_area geometry,
		phenomenon_time tstzrange,
		result_time tstzrange,
		properties jsonb,
		thing_id bigint NOT NULL REFERENCES "thing"(id) ON DELETE CASCADE,
		sensor_id bigint NOT NULL REFERENCES "sensor"(id) ON DELETE CASCADE,
		observedproperty_id bigint NOT NULL REFERENCES "observedproperty"(id) ON DELETE CASCADE,
		last_foi_id bigint,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "featuresofinterest" (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		description text NOT NULL,
		encoding_type text NOT NULL,
		feature geometry NOT NULL,
		properties jsonb,
		commit_id bigint REFERENCES "commit"(id)
	)`,

	`CREATE TABLE IF NOT EXISTS "observation" (
		id bigserial PRIMARY KEY,
		phenomenon_time tstzrange NOT NULL,
		result_time timestamptz,
		result_type smallint NOT NULL,
		result_number double precision,
		result_string text,
		result_boolean boolean,
		result_json jsonb,
		result_quality jsonb,
		valid_time tstzrange,
		parameters jsonb,
		datastream_id bigint NOT NULL REFERENCES "datastream"(id) ON DELETE CASCADE,
		featuresofinterest_id bigint NOT NULL REFERENCES "featuresofinterest"(id) ON DELETE CASCADE,
		commit_id bigint REFERENCES "commit"(id),
		CONSTRAINT observation_datastream_phenomenon_time_key
			UNIQUE (datastream_id, phenomenon_time)
	)`,

	`CREATE TABLE IF NOT EXISTS "thing_location" (
		thing_id bigint NOT NULL REFERENCES "thing"(id) ON DELETE CASCADE,
		location_id bigint NOT NULL REFERENCES "location"(id) ON DELETE CASCADE,
		PRIMARY KEY (thing_id, location_id)
	)`,

	`CREATE TABLE IF NOT EXISTS "location_historicallocation" (
		location_id bigint NOT NULL REFERENCES "location"(id) ON DELETE CASCADE,
		historicallocation_id bigint NOT NULL REFERENCES "historicallocation"(id) ON DELETE CASCADE,
		PRIMARY KEY (location_id, historicallocation_id)
	)`,
}

// createIndexes supports the hot paths: observation paging within a
// datastream, spatial filters, and temporal filters.
var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_observation_datastream_id ON "observation" (datastream_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_observation_phenomenon_time ON "observation" USING gist (phenomenon_time)`,
	`CREATE INDEX IF NOT EXISTS idx_observation_foi ON "observation" (featuresofinterest_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datastream_thing_id ON "datastream" (thing_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datastream_sensor_id ON "datastream" (sensor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datastream_observedproperty_id ON "datastream" (observedproperty_id)`,
	`CREATE INDEX IF NOT EXISTS idx_historicallocation_thing_id ON "historicallocation" (thing_id)`,
	`CREATE INDEX IF NOT EXISTS idx_location_geom ON "location" USING gist (location)`,
	`CREATE INDEX IF NOT EXISTS idx_featuresofinterest_geom ON "featuresofinterest" USING gist (feature)`,
}

// versionedTables lists the tables that get a system-time shadow when
// versioning is enabled. Commit and the link tables are not versioned.
var versionedTables = []string{
	"thing", "location", "historicallocation", "sensor", "observedproperty",
	"datastream", "featuresofinterest", "observation",
}

// travelTimeTrigger maintains the shadow tables. Every INSERT or UPDATE on a
// base table closes the open version (if any) and opens a new one; DELETE
// only closes. The open version has an infinite upper bound.
const travelTimeTrigger = `
CREATE OR REPLACE FUNCTION istsos_traveltime() RETURNS trigger AS $$
DECLARE
	shadow text := TG_TABLE_NAME || '_traveltime';
BEGIN
	IF TG_OP IN ('UPDATE', 'DELETE') THEN
		EXECUTE format(
			'UPDATE %I SET system_time_validity = tstzrange(lower(system_time_validity), now(), ''[)'')
			 WHERE id = $1.id AND upper_inf(system_time_validity)', shadow)
		USING OLD;
	END IF;
	IF TG_OP IN ('INSERT', 'UPDATE') THEN
		EXECUTE format(
			'INSERT INTO %I SELECT $1.*, tstzrange(now(), ''infinity'', ''[)'')', shadow)
		USING NEW;
		RETURN NEW;
	END IF;
	RETURN OLD;
END;
$$ LANGUAGE plpgsql`

// initSchema creates the tables, indexes, and, when versioning is enabled,
// the shadow tables and their triggers.
func (db *DB) initSchema(ctx context.Context, cfg *config.Config) error {
	for _, stmt := range createTables {
		if _, err := db.write.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	for _, stmt := range createIndexes {
		if _, err := db.write.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}
	}
	if !cfg.Versioning.Enabled {
		return nil
	}
	if _, err := db.write.Exec(ctx, travelTimeTrigger); err != nil {
		return fmt.Errorf("create traveltime trigger function: %w", err)
	}
	for _, table := range versionedTables {
		if err := db.initShadow(ctx, table); err != nil {
			return err
		}
	}
	logging.Info().Int("tables", len(versionedTables)).Msg("System-time versioning enabled")
	return nil
}

// initShadow creates one shadow table and attaches the trigger.
func (db *DB) initShadow(ctx context.Context, table string) error {
	shadow := table + "_traveltime"
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (LIKE %q)`, shadow, table),
		fmt.Sprintf(`ALTER TABLE %q ADD COLUMN IF NOT EXISTS system_time_validity tstzrange NOT NULL DEFAULT tstzrange(now(), 'infinity', '[)')`, shadow),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_id ON %q (id)`, shadow, shadow),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_validity ON %q USING gist (system_time_validity)`, shadow, shadow),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_versioning ON %q`, table, table),
		fmt.Sprintf(`CREATE TRIGGER %s_versioning AFTER INSERT OR UPDATE OR DELETE ON %q FOR EACH ROW EXECUTE FUNCTION istsos_traveltime()`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := db.write.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("shadow table %s: %w", shadow, err)
		}
	}
	return nil
}

// Truncate empties every table and resets the id sequences. Integration
// tests call this between cases.
func (db *DB) Truncate(ctx context.Context) error {
	_, err := db.write.Exec(ctx, "TRUNCATE "+tableNames()+" RESTART IDENTITY CASCADE")
	return err
}

// tableNames returns the quoted comma-joined base table list.
func tableNames() string {
	quoted := make([]string, 0, len(versionedTables)+3)
	for _, t := range versionedTables {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	quoted = append(quoted, `"thing_location"`, `"location_historicallocation"`, `"commit"`)
	return strings.Join(quoted, ", ")
}
