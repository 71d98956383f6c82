// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/istsos/sta-go/internal/database"
	"github.com/istsos/sta-go/internal/metrics"
	"github.com/istsos/sta-go/internal/middleware"
	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
	"github.com/istsos/sta-go/internal/query/parser"
)

// maxBodyBytes caps request bodies. Bulk Observation batches are the largest
// legitimate payloads.
const maxBodyBytes = 32 << 20

// readBody drains the request body under the size cap.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &database.PayloadError{Detail: "request body unreadable or too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &database.PayloadError{Detail: "request body is empty"}
	}
	return body, nil
}

// handleCreate serves POST to a collection, direct or through a navigation
// (/Datastreams(1)/Observations). An array body on an Observations collection
// takes the bulk path.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	path, err := parser.ParsePath(h.resourcePath(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if path.Last().ID != nil || path.Property != "" || path.Ref || path.Value {
		writeError(w, r, http.StatusBadRequest, "POST requires a collection path")
		return
	}
	target := model.MustLookup(path.Last().Entity)
	if target.Name == model.Commit {
		writeError(w, r, http.StatusMethodNotAllowed, "Commits are created implicitly and cannot be posted")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	parentFK, injected, err := h.createContext(path)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// bulk ingest: a JSON array on an Observations collection
	if target.Name == model.Observation && bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		h.createBulk(w, r, body, parentFK)
		return
	}

	var payload database.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, r, &database.PayloadError{Detail: "body must be a JSON object"})
		return
	}
	for nav, raw := range injected {
		if _, ok := payload[nav]; !ok {
			payload[nav] = raw
		}
	}
	if err := h.stampCommit(r, payload, "create "+target.Name); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := h.mutator.Create(r.Context(), target.Name, payload, parentFK)
	metrics.RecordMutation(target.Name, "create", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if target.Name == model.Observation {
		metrics.ObservationsIngested.WithLabelValues("single").Inc()
	}

	self := fmt.Sprintf("%s/%s(%d)", h.cfg.Service.RootURL(), target.Plural, id)
	w.Header().Set("Location", self)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"@iot.id":       id,
		"@iot.selfLink": self,
	})
}

// createContext resolves a contextual create: the foreign key of a to-many
// parent, or an injected reverse reference for a link-table navigation.
func (h *Handler) createContext(path *ast.ResourcePath) (map[string]int64, database.Payload, error) {
	if len(path.Segments) < 2 {
		return nil, nil, nil
	}
	parent := path.Segments[len(path.Segments)-2]
	if parent.ID == nil {
		return nil, nil, &database.PayloadError{Detail: "contextual create requires an identified parent"}
	}
	last := path.Last()
	rel, ok := model.LookupRelationship(parent.Entity, last.Nav)
	if !ok {
		return nil, nil, &parser.PathError{Segment: last.Nav, Reason: "unknown navigation"}
	}

	switch rel.Cardinality {
	case model.OneToMany:
		return map[string]int64{rel.FKColumn: *parent.ID}, nil, nil
	case model.ManyToMany:
		// POST /Things(1)/Locations creates the Location and links it back;
		// expressed as the reverse navigation reference in the payload.
		for _, reverse := range model.Relationships(last.Entity) {
			if reverse.Cardinality == model.ManyToMany && reverse.LinkTable == rel.LinkTable && reverse.Target == parent.Entity {
				ref := json.RawMessage(fmt.Sprintf(`[{"@iot.id": %d}]`, *parent.ID))
				return nil, database.Payload{reverse.Name: ref}, nil
			}
		}
		return nil, nil, &parser.PathError{Segment: last.Nav, Reason: "navigation cannot be posted to"}
	default:
		return nil, nil, &database.PayloadError{Detail: "cannot post to a to-one navigation"}
	}
}

// stampCommit attaches provenance to a write when versioning is enabled: the
// client's Commit object gains the authenticated author, or a minimal commit
// is synthesized.
func (h *Handler) stampCommit(r *http.Request, payload database.Payload, message string) error {
	if !h.cfg.Versioning.Enabled {
		if _, ok := payload["Commit"]; ok {
			return &database.PayloadError{Detail: "Commit requires versioning to be enabled"}
		}
		return nil
	}

	author := middleware.GetUser(r.Context())
	commit := database.Payload{}
	if raw, ok := payload["Commit"]; ok {
		if err := json.Unmarshal(raw, &commit); err != nil {
			return &database.PayloadError{Detail: "Commit must be an object"}
		}
	}
	if _, ok := commit["message"]; !ok {
		commit["message"], _ = json.Marshal(message)
	}
	commit["author"], _ = json.Marshal(author)

	raw, err := json.Marshal(commit)
	if err != nil {
		return fmt.Errorf("encode commit: %w", err)
	}
	payload["Commit"] = raw
	return nil
}

// createBulk ingests a JSON array of Observations posted to
// /Datastreams(n)/Observations in one multi-row insert.
func (h *Handler) createBulk(w http.ResponseWriter, r *http.Request, body []byte, parentFK map[string]int64) {
	datastreamID, ok := parentFK["datastream_id"]
	if !ok {
		respondError(w, r, &database.PayloadError{Detail: "bulk Observation arrays must be posted to /Datastreams(n)/Observations"})
		return
	}
	var payloads []database.Payload
	if err := json.Unmarshal(body, &payloads); err != nil {
		respondError(w, r, &database.PayloadError{Detail: "body must be a JSON array of Observations"})
		return
	}
	if len(payloads) == 0 {
		respondError(w, r, &database.PayloadError{Detail: "Observation array is empty"})
		return
	}

	ids, err := h.mutator.InsertBulk(r.Context(), datastreamID, payloads)
	metrics.RecordMutation(model.Observation, "create", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	metrics.ObservationsIngested.WithLabelValues("bulk").Add(float64(len(ids)))

	links := make([]string, 0, len(ids))
	for _, id := range ids {
		links = append(links, fmt.Sprintf("%s/Observations(%d)", h.cfg.Service.RootURL(), id))
	}
	writeJSON(w, http.StatusCreated, links)
}

// CreateObservations serves the STA batch protocol: dataArray groups keyed by
// Datastream, each row succeeding or failing independently.
func (h *Handler) CreateObservations(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var groups []database.DataArrayGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		respondError(w, r, &database.PayloadError{Detail: "body must be a JSON array of dataArray groups"})
		return
	}
	if len(groups) == 0 {
		respondError(w, r, &database.PayloadError{Detail: "dataArray group list is empty"})
		return
	}

	results, err := h.mutator.CreateObservations(r.Context(), groups, h.cfg.Service.RootURL())
	metrics.RecordMutation(model.Observation, "create", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	created := 0
	for _, res := range results {
		if res != "error" {
			created++
		}
	}
	metrics.ObservationsIngested.WithLabelValues("data_array").Add(float64(created))
	writeJSON(w, http.StatusCreated, results)
}

// BulkObservations serves the high-throughput typed ingest. Each group is
// written in one multi-row insert; a bad row fails the whole request instead
// of the per-row "error" markers CreateObservations returns.
func (h *Handler) BulkObservations(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var groups []database.DataArrayGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		respondError(w, r, &database.PayloadError{Detail: "body must be a JSON array of dataArray groups"})
		return
	}
	if len(groups) == 0 {
		respondError(w, r, &database.PayloadError{Detail: "dataArray group list is empty"})
		return
	}

	links, err := h.mutator.BulkObservations(r.Context(), groups, h.cfg.Service.RootURL())
	metrics.RecordMutation(model.Observation, "create", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	metrics.ObservationsIngested.WithLabelValues("bulk").Add(float64(len(links)))
	writeJSON(w, http.StatusCreated, links)
}

// handleUpdate serves PATCH and PUT on a single entity. Both apply the given
// properties; absent properties are left alone.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	entity, id, err := h.singleTarget(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entity.Name == model.Commit {
		writeError(w, r, http.StatusMethodNotAllowed, "Commits are immutable")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var payload database.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, r, &database.PayloadError{Detail: "body must be a JSON object"})
		return
	}
	if _, ok := payload["@iot.id"]; ok {
		respondError(w, r, &database.PayloadError{Detail: "@iot.id cannot be changed"})
		return
	}
	if err := h.stampCommit(r, payload, fmt.Sprintf("update %s(%d)", entity.Name, id)); err != nil {
		respondError(w, r, err)
		return
	}

	err = h.mutator.Update(r.Context(), entity.Name, id, payload)
	metrics.RecordMutation(entity.Name, "update", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"@iot.id":       id,
		"@iot.selfLink": fmt.Sprintf("%s/%s(%d)", h.cfg.Service.RootURL(), entity.Plural, id),
	})
}

// handleDelete serves DELETE on a single entity.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	entity, id, err := h.singleTarget(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entity.Name == model.Commit {
		writeError(w, r, http.StatusMethodNotAllowed, "Commits are immutable")
		return
	}

	err = h.mutator.Delete(r.Context(), entity.Name, id)
	metrics.RecordMutation(entity.Name, "delete", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// singleTarget parses a write path, which must address exactly one entity by
// id at its top-level collection.
func (h *Handler) singleTarget(r *http.Request) (*model.Entity, int64, error) {
	path, err := parser.ParsePath(h.resourcePath(r))
	if err != nil {
		return nil, 0, err
	}
	if path.Property != "" || path.Ref || path.Value {
		return nil, 0, &database.PayloadError{Detail: "writes address entities, not properties"}
	}
	if len(path.Segments) != 1 || path.Last().ID == nil {
		return nil, 0, &database.PayloadError{Detail: "writes require a direct /Collection(id) path"}
	}
	return model.MustLookup(path.Last().Entity), *path.Last().ID, nil
}
