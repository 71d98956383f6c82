// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package api

import (
	"net/http"

	"github.com/istsos/sta-go/internal/model"
)

// ServiceRoot serves the STA service document: one entry per entity set.
func (h *Handler) ServiceRoot(w http.ResponseWriter, r *http.Request) {
	type entitySet struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	root := h.cfg.Service.RootURL()
	sets := make([]entitySet, 0, len(model.Names()))
	for _, name := range model.Names() {
		entity := model.MustLookup(name)
		sets = append(sets, entitySet{
			Name: entity.Plural,
			URL:  root + "/" + entity.Plural,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": sets})
}

// Healthz reports liveness and database reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
