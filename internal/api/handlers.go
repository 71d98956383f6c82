// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/istsos/sta-go/internal/logging"
	"github.com/istsos/sta-go/internal/metrics"
	"github.com/istsos/sta-go/internal/query/ast"
	"github.com/istsos/sta-go/internal/query/compiler"
	"github.com/istsos/sta-go/internal/query/parser"
	"github.com/istsos/sta-go/internal/query/temporal"
)

// resourcePath strips the mount prefix off the request path.
func (h *Handler) resourcePath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, h.cfg.Service.RootPath())
}

// rawQuery returns the decoded query string. STA options arrive
// percent-encoded by strict clients and bare by most others; decoding is
// idempotent for the bare form.
func rawQuery(r *http.Request) string {
	decoded, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		return r.URL.RawQuery
	}
	return decoded
}

// handleGet runs the read pipeline: parse path and query, resolve system
// time, compile, execute.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	stmt, err := h.compile(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := r.Context()
	start := time.Now()

	if stmt.Single {
		body, err := h.executor.Single(ctx, stmt)
		if err != nil {
			respondError(w, r, err)
			return
		}
		metrics.QueryDuration.WithLabelValues(stmt.Entity.Name, "single").Observe(time.Since(start).Seconds())
		if stmt.RawValue {
			if body == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := h.executor.Stream(ctx, stmt, w); err != nil {
		// headers are gone; all that is left is the log and a truncated body
		logging.Ctx(ctx).Error().Err(err).Str("path", r.URL.Path).Msg("Streaming failed mid-response")
		return
	}
	metrics.QueryDuration.WithLabelValues(stmt.Entity.Name, "collection").Observe(time.Since(start).Seconds())
	metrics.StreamedEntities.WithLabelValues(stmt.Entity.Name).Add(float64(stmt.Top))
}

// compile runs the front half of the pipeline for a GET.
func (h *Handler) compile(r *http.Request) (*compiler.Statement, error) {
	path, err := parser.ParsePath(h.resourcePath(r))
	if err != nil {
		return nil, err
	}

	q := &ast.QueryNode{}
	raw := rawQuery(r)
	if raw != "" {
		q, err = parser.Parse(raw)
		if err != nil {
			return nil, err
		}
	}

	if q.HasSystemTime() && !h.cfg.Versioning.Enabled {
		return nil, &parser.ParseError{Hint: "$as_of and $from_to require versioning to be enabled"}
	}
	if err := temporal.Resolve(path.Last().Entity, q, time.Now()); err != nil {
		return nil, err
	}
	return h.compiler.Compile(path, q, raw)
}
