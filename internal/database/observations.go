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

// createObservation is the Observation ingest path: resolve the datastream,
// type the result, default the times, resolve or generate the feature of
// interest, insert, and extend the datastream's derived state.
func (m *Mutator) createObservation(ctx context.Context, tx pgx.Tx, payload Payload, parentFK map[string]int64) (int64, error) {
	record := goqu.Record{}

	// provenance first: inline-created datastreams and features of interest
	// inherit the observation's commit
	var commitID interface{}
	var inherit map[string]int64
	if cid, ok := parentFK["commit_id"]; ok {
		commitID = cid
		inherit = map[string]int64{"commit_id": cid}
	}
	if raw, present := payload["Commit"]; present {
		rel, _ := model.LookupRelationship(model.Observation, "Commit")
		id, err := m.resolveRelated(ctx, tx, rel, raw, nil)
		if err != nil {
			return 0, err
		}
		commitID = id
		inherit = map[string]int64{"commit_id": id}
	}

	datastreamID, ok := parentFK["datastream_id"]
	if !ok {
		raw, present := payload["Datastream"]
		if !present {
			return 0, &PayloadError{Detail: "Observation requires a Datastream"}
		}
		rel, _ := model.LookupRelationship(model.Observation, "Datastream")
		var err error
		datastreamID, err = m.resolveRelated(ctx, tx, rel, raw, inherit)
		if err != nil {
			return 0, err
		}
	}
	record["datastream_id"] = datastreamID

	var foiID int64
	var foiGiven bool

	for key, raw := range payload {
		switch key {
		case "Datastream", "@iot.id", "Commit":
			continue
		case "FeatureOfInterest":
			rel, _ := model.LookupRelationship(model.Observation, "FeatureOfInterest")
			id, err := m.resolveRelated(ctx, tx, rel, raw, inherit)
			if err != nil {
				return 0, err
			}
			foiID, foiGiven = id, true
		case "result":
			result, err := model.ParseResult(raw)
			if err != nil {
				return 0, &PayloadError{Detail: err.Error()}
			}
			record[model.ResultTypeColumn] = int(result.Type)
			record[result.Type.Column()] = result.Value()
		case "phenomenonTime", "resultTime", "validTime", "resultQuality", "parameters":
			entity := model.MustLookup(model.Observation)
			value, err := m.columnValue(entity, key, raw)
			if err != nil {
				return 0, err
			}
			record[model.Column(key)] = value
		default:
			return 0, &PayloadError{Detail: fmt.Sprintf("unknown property %q for Observation", key)}
		}
	}

	if _, ok := record[model.ResultTypeColumn]; !ok {
		return 0, &PayloadError{Detail: "Observation requires result"}
	}

	// phenomenonTime defaults to resultTime, then to the server clock
	if _, ok := record["phenomenon_time"]; !ok {
		at := time.Now().UTC()
		if ts, ok := record["result_time"].(time.Time); ok {
			at = ts
		}
		record["phenomenon_time"] = goqu.L("?::tstzrange", rangeText(at, at))
	}

	if !foiGiven {
		id, err := m.featureOfInterestFor(ctx, tx, datastreamID)
		if err != nil {
			return 0, err
		}
		foiID = id
	}
	record["featuresofinterest_id"] = foiID
	if commitID != nil {
		record["commit_id"] = commitID
	}

	id, err := m.insertRecord(ctx, tx, "observation", record)
	if err != nil {
		return 0, err
	}

	if err := m.extendDatastream(ctx, tx, datastreamID, foiID); err != nil {
		return 0, err
	}
	return id, nil
}

// featureOfInterestFor resolves the implicit FeatureOfInterest of a
// datastream: the one generated from the Thing's current Location. The
// generated FOI is cached on the location row (gen_foi_id) so subsequent
// observations reuse it.
func (m *Mutator) featureOfInterestFor(ctx context.Context, tx pgx.Tx, datastreamID int64) (int64, error) {
	var locationID int64
	var genFOI *int64
	err := tx.QueryRow(ctx, `
		SELECT l.id, l.gen_foi_id
		FROM "location" l
		INNER JOIN "thing_location" tl ON tl.location_id = l.id
		INNER JOIN "datastream" d ON d.thing_id = tl.thing_id
		WHERE d.id = $1
		ORDER BY l.id DESC
		LIMIT 1`, datastreamID).Scan(&locationID, &genFOI)
	if err == pgx.ErrNoRows {
		return 0, &PayloadError{Detail: "no FeatureOfInterest given and the Thing has no Location to generate one from"}
	}
	if err != nil {
		return 0, fmt.Errorf("resolve location for datastream %d: %w", datastreamID, err)
	}
	if genFOI != nil {
		return *genFOI, nil
	}

	var foiID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO "featuresofinterest" (name, description, encoding_type, feature, properties)
		SELECT l.name, l.description, l.encoding_type, l.location, l.properties
		FROM "location" l WHERE l.id = $1
		RETURNING id`, locationID).Scan(&foiID)
	if err != nil {
		return 0, fmt.Errorf("generate feature of interest: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE "location" SET gen_foi_id = $1 WHERE id = $2`, foiID, locationID); err != nil {
		return 0, fmt.Errorf("cache generated feature of interest: %w", err)
	}
	return foiID, nil
}

// DataArrayGroup is one group of a CreateObservations request.
type DataArrayGroup struct {
	Datastream struct {
		ID int64 `json:"@iot.id"`
	} `json:"Datastream"`
	Components []string            `json:"components"`
	DataArray  [][]json.RawMessage `json:"dataArray"`
}

// CreateObservations implements the STA batch ingest: each row either yields
// the new observation's selfLink or the literal "error". Rows fail
// independently behind savepoints; a failed row never aborts the batch.
func (m *Mutator) CreateObservations(ctx context.Context, groups []DataArrayGroup, rootURL string) ([]string, error) {
	results := make([]string, 0, 64)
	err := m.inTx(ctx, func(tx pgx.Tx) error {
		for gi, group := range groups {
			if group.Datastream.ID == 0 {
				return &PayloadError{Detail: fmt.Sprintf("group %d: Datastream reference is required", gi)}
			}
			if len(group.Components) == 0 {
				return &PayloadError{Detail: fmt.Sprintf("group %d: components are required", gi)}
			}
			fk := map[string]int64{"datastream_id": group.Datastream.ID}
			for _, row := range group.DataArray {
				payload, err := payloadFromComponents(group.Components, row)
				if err != nil {
					results = append(results, "error")
					continue
				}
				id, err := m.createInSavepoint(ctx, tx, payload, fk)
				if err != nil {
					results = append(results, "error")
					continue
				}
				results = append(results, fmt.Sprintf("%s/Observations(%d)", rootURL, id))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// createInSavepoint isolates one row so its failure rolls back only itself.
func (m *Mutator) createInSavepoint(ctx context.Context, tx pgx.Tx, payload Payload, fk map[string]int64) (int64, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	id, err := m.createObservation(ctx, sp, payload, fk)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return 0, rbErr
		}
		return 0, err
	}
	return id, sp.Commit(ctx)
}

// payloadFromComponents zips one dataArray row with the component names.
func payloadFromComponents(components []string, row []json.RawMessage) (Payload, error) {
	if len(row) != len(components) {
		return nil, fmt.Errorf("row has %d values for %d components", len(row), len(components))
	}
	payload := make(Payload, len(components))
	for i, name := range components {
		if name == "FeatureOfInterest/id" {
			var id int64
			if err := json.Unmarshal(row[i], &id); err != nil {
				return nil, fmt.Errorf("FeatureOfInterest/id must be an integer")
			}
			ref, _ := json.Marshal(map[string]int64{"@iot.id": id})
			payload["FeatureOfInterest"] = ref
			continue
		}
		payload[name] = row[i]
	}
	return payload, nil
}

// BulkObservations is the high-throughput typed ingest: each dataArray group
// becomes one multi-row insert through InsertBulk. Unlike CreateObservations,
// rows do not fail independently; one bad row fails the request.
func (m *Mutator) BulkObservations(ctx context.Context, groups []DataArrayGroup, rootURL string) ([]string, error) {
	links := make([]string, 0, 64)
	for gi := range groups {
		payloads, err := bulkPayloads(&groups[gi], gi)
		if err != nil {
			return nil, err
		}
		ids, err := m.InsertBulk(ctx, groups[gi].Datastream.ID, payloads)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			links = append(links, fmt.Sprintf("%s/Observations(%d)", rootURL, id))
		}
	}
	return links, nil
}

// bulkPayloads validates one group for the typed bulk path and zips its rows.
// The bulk path shares the datastream's generated FeatureOfInterest, so
// per-row FOI references are not accepted.
func bulkPayloads(group *DataArrayGroup, index int) ([]Payload, error) {
	if group.Datastream.ID == 0 {
		return nil, &PayloadError{Detail: fmt.Sprintf("group %d: Datastream reference is required", index)}
	}
	var hasTime, hasResult bool
	for _, component := range group.Components {
		switch component {
		case "phenomenonTime":
			hasTime = true
		case "result":
			hasResult = true
		case "FeatureOfInterest/id":
			return nil, &PayloadError{Detail: fmt.Sprintf("group %d: FeatureOfInterest is not supported in bulk components", index)}
		}
	}
	if !hasTime || !hasResult {
		return nil, &PayloadError{Detail: fmt.Sprintf("group %d: components must include phenomenonTime and result", index)}
	}
	if len(group.DataArray) == 0 {
		return nil, &PayloadError{Detail: fmt.Sprintf("group %d: dataArray is empty", index)}
	}

	payloads := make([]Payload, 0, len(group.DataArray))
	for _, row := range group.DataArray {
		payload, err := payloadFromComponents(group.Components, row)
		if err != nil {
			return nil, &PayloadError{Detail: fmt.Sprintf("group %d: %v", index, err)}
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

// InsertBulk ingests many observations into one datastream with a single
// multi-row insert, then extends the derived state once. All rows share the
// transaction: one bad row fails the whole batch.
func (m *Mutator) InsertBulk(ctx context.Context, datastreamID int64, payloads []Payload) ([]int64, error) {
	ids := make([]int64, 0, len(payloads))
	entity := model.MustLookup(model.Observation)

	err := m.inTx(ctx, func(tx pgx.Tx) error {
		foiID, err := m.featureOfInterestFor(ctx, tx, datastreamID)
		if err != nil {
			return err
		}

		records := make([]interface{}, 0, len(payloads))
		for _, payload := range payloads {
			record := goqu.Record{
				"datastream_id":         datastreamID,
				"featuresofinterest_id": foiID,
			}
			for key, raw := range payload {
				switch key {
				case "result":
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
				case "phenomenonTime", "resultTime", "validTime", "resultQuality", "parameters":
					value, err := m.columnValue(entity, key, raw)
					if err != nil {
						return err
					}
					record[model.Column(key)] = value
				default:
					return &PayloadError{Detail: fmt.Sprintf("unknown property %q for Observation", key)}
				}
			}
			if _, ok := record[model.ResultTypeColumn]; !ok {
				return &PayloadError{Detail: "Observation requires result"}
			}
			if _, ok := record["phenomenon_time"]; !ok {
				at := time.Now().UTC()
				if ts, ok := record["result_time"].(time.Time); ok {
					at = ts
				}
				record["phenomenon_time"] = goqu.L("?::tstzrange", rangeText(at, at))
			}
			// multi-row inserts need a uniform column set
			for _, col := range []string{"result_time", "valid_time", "result_quality", "parameters"} {
				if _, ok := record[col]; !ok {
					record[col] = nil
				}
			}
			records = append(records, record)
		}

		sql, args, err := dialect.Insert("observation").Prepared(true).Rows(records...).Returning(goqu.C("id")).ToSQL()
		if err != nil {
			return fmt.Errorf("build bulk insert: %w", err)
		}
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return m.extendDatastream(ctx, tx, datastreamID, foiID)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
