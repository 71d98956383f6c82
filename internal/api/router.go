// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/database"
	"github.com/istsos/sta-go/internal/metrics"
	"github.com/istsos/sta-go/internal/middleware"
	"github.com/istsos/sta-go/internal/query/compiler"
)

// Handler carries the wired pipeline: compiler, streaming executor, and
// mutation engine.
type Handler struct {
	cfg      *config.Config
	compiler *compiler.Compiler
	executor *database.Executor
	mutator  *database.Mutator
	db       *database.DB
}

// NewHandler wires the pipeline for the given configuration and database.
func NewHandler(cfg *config.Config, db *database.DB) *Handler {
	return &Handler{
		cfg: cfg,
		compiler: compiler.New(compiler.Settings{
			RootURL:                cfg.Service.RootURL(),
			TopValue:               cfg.Query.TopValue,
			EPSG:                   cfg.Query.EPSG,
			CountMode:              cfg.Query.CountMode,
			CountEstimateThreshold: cfg.Query.CountEstimateThreshold,
			Versioning:             cfg.Versioning.Enabled,
		}),
		executor: database.NewExecutor(db, &cfg.Query),
		mutator:  database.NewMutator(db, cfg),
		db:       db,
	}
}

// NewRouter builds the full HTTP stack: operational endpoints at the server
// root, the STA service mounted at subpath+version behind auth.
func NewRouter(cfg *config.Config, db *database.DB) http.Handler {
	h := NewHandler(cfg, db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Location", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Metrics)

	if cfg.Security.RateLimitReqs > 0 {
		r.Use(httprate.Limit(
			cfg.Security.RateLimitReqs,
			cfg.Security.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				metrics.RateLimitHits.Inc()
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(cfg.Service.RootPath(), func(r chi.Router) {
		r.Use(middleware.Auth(&cfg.Security))
		r.Get("/", h.ServiceRoot)
		r.Post("/CreateObservations", h.CreateObservations)
		r.Post("/BulkObservations", h.BulkObservations)
		r.HandleFunc("/*", h.Resource)
	})

	return r
}

// Resource dispatches everything below the service root by method.
func (h *Handler) Resource(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodPatch, http.MethodPut:
		h.handleUpdate(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}
