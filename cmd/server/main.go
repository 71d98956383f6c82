// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package main is the entry point for the sta-go server.
//
// sta-go serves the OGC SensorThings API v1.1 over PostgreSQL/PostGIS. Every
// read request compiles to a single SQL statement whose rows are finished
// JSON entities, streamed to the client through a server-side cursor. With
// versioning enabled, entities carry system-time history queryable through
// the $as_of and $from_to options.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml, environment)
//  2. Logging: zerolog, configured from the logging section
//  3. Database: pgx pools (write + optional read replica), schema bootstrap
//  4. HTTP server: Chi router with the STA service mounted at subpath+version
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener stops accepting,
// in-flight requests get 10 seconds to finish, then the pools close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/istsos/sta-go/internal/api"
	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/database"
	"github.com/istsos/sta-go/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// config not yet available; the default logger will do
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("root_url", cfg.Service.RootURL()).
		Str("count_mode", cfg.Query.CountMode).
		Bool("versioning", cfg.Versioning.Enabled).
		Bool("authorization", cfg.Security.Authorization).
		Msg("Configuration loaded")

	if !cfg.Security.Authorization {
		logging.Warn().Msg("Authorization is disabled; all endpoints accept unauthenticated writes")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	logging.Info().
		Str("host", cfg.Postgres.Host).
		Str("database", cfg.Postgres.Database).
		Msg("Database initialized")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      api.NewRouter(cfg, db),
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logging.Info().Msg("Server stopped gracefully")
}
