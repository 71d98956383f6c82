// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/logging"
)

// DB holds the two connection pools: writes always go to the primary, reads
// may be routed at a replica via postgres.read_host.
type DB struct {
	write *pgxpool.Pool
	read  *pgxpool.Pool
	cfg   *config.PostgresConfig
}

// New connects both pools, verifies connectivity, and initializes the schema.
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	write, err := newPool(ctx, cfg.Postgres.WriteDSN(), &cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect write pool: %w", err)
	}

	read := write
	if cfg.Postgres.ReadHost != "" {
		read, err = newPool(ctx, cfg.Postgres.ReadDSN(), &cfg.Postgres)
		if err != nil {
			write.Close()
			return nil, fmt.Errorf("connect read pool: %w", err)
		}
	}

	db := &DB{write: write, read: read, cfg: &cfg.Postgres}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.initSchema(ctx, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Info().
		Str("host", cfg.Postgres.Host).
		Str("database", cfg.Postgres.Database).
		Bool("read_replica", cfg.Postgres.ReadHost != "").
		Msg("Database connected")
	return db, nil
}

func newPool(ctx context.Context, dsn string, cfg *config.PostgresConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	pc.MaxConns = int32(cfg.PoolSize + cfg.MaxOverflow)
	pc.MinConns = int32(cfg.PoolSize / 2)
	if cfg.PoolTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.PoolTimeout
	}
	pc.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, pc)
}

// Write returns the read-write pool.
func (db *DB) Write() *pgxpool.Pool { return db.write }

// Read returns the streaming-read pool.
func (db *DB) Read() *pgxpool.Pool { return db.read }

// Ping verifies both pools.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.write.Ping(ctx); err != nil {
		return err
	}
	if db.read != db.write {
		return db.read.Ping(ctx)
	}
	return nil
}

// Close releases both pools.
func (db *DB) Close() {
	if db.read != nil && db.read != db.write {
		db.read.Close()
	}
	if db.write != nil {
		db.write.Close()
	}
}
