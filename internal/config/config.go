// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package config defines the immutable server configuration and its loading
// via Koanf v2 with layered sources (defaults, optional YAML file, environment).
//
// The Config value is passed explicitly into every component; no package in
// sta-go reads the environment on its own.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Count modes for $count=true compilation. See CompileCount in the compiler
// package for how each mode is executed.
const (
	// CountModeFull runs an exact COUNT(*) over the filtered set.
	CountModeFull = "FULL"

	// CountModeLimitEstimate counts up to the threshold first, then falls
	// back to the planner estimate when the threshold is reached.
	CountModeLimitEstimate = "LIMIT_ESTIMATE"

	// CountModeEstimateLimit asks the planner first and only counts exactly
	// when the estimate is below the threshold.
	CountModeEstimateLimit = "ESTIMATE_LIMIT"
)

// Spatial aggregate modes for Datastream.observedArea maintenance.
const (
	// STAggregateConvexHull aggregates FOI geometries with ST_ConvexHull(ST_Collect(...)).
	STAggregateConvexHull = "CONVEX_HULL"

	// STAggregateExtent aggregates with ST_SetSRID(ST_Extent(...), EPSG).
	// The result is a 2-D bounding rectangle even for 3-D inputs.
	STAggregateExtent = "EXTENT"
)

// Config is the root configuration for the sta-go server.
type Config struct {
	HTTP       HTTPConfig       `koanf:"http"`
	Service    ServiceConfig    `koanf:"service"`
	Postgres   PostgresConfig   `koanf:"postgres"`
	Query      QueryConfig      `koanf:"query"`
	Versioning VersioningConfig `koanf:"versioning"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// ServiceConfig configures the public URL surface of the STA service.
// Links in responses are built as Hostname + Subpath + Version + path.
type ServiceConfig struct {
	// Hostname is the absolute URL prefix, e.g. "http://localhost:8018".
	Hostname string `koanf:"hostname"`

	// Subpath is the URL path component before the version, e.g. "/istsos4".
	Subpath string `koanf:"subpath"`

	// Version is the STA version path component, e.g. "/v1.1".
	Version string `koanf:"version"`
}

// RootURL returns the absolute base URL of the service, without trailing slash.
func (s ServiceConfig) RootURL() string {
	return s.Hostname + s.Subpath + s.Version
}

// RootPath returns the path prefix the router mounts, e.g. "/istsos4/v1.1".
func (s ServiceConfig) RootPath() string {
	return s.Subpath + s.Version
}

// PostgresConfig configures the connection pools. A separate read host may be
// given to route streaming reads at a replica; when empty, Host serves both.
type PostgresConfig struct {
	Host         string        `koanf:"host"`
	ReadHost     string        `koanf:"read_host"`
	Port         int           `koanf:"port"`
	User         string        `koanf:"user"`
	Password     string        `koanf:"password"`
	Database     string        `koanf:"database"`
	PoolSize     int           `koanf:"pool_size"`
	PoolTimeout  time.Duration `koanf:"pool_timeout"`
	MaxOverflow  int           `koanf:"max_overflow"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// DSN builds a pgx connection string for the given host.
func (p PostgresConfig) DSN(host string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(p.User), url.QueryEscape(p.Password), host, p.Port, p.Database)
}

// WriteDSN returns the DSN for the read-write pool.
func (p PostgresConfig) WriteDSN() string { return p.DSN(p.Host) }

// ReadDSN returns the DSN for the streaming-read pool.
func (p PostgresConfig) ReadDSN() string {
	if p.ReadHost != "" {
		return p.DSN(p.ReadHost)
	}
	return p.DSN(p.Host)
}

// QueryConfig configures query compilation and streaming execution.
type QueryConfig struct {
	// TopValue is the default and maximum page size ($top).
	TopValue int `koanf:"top_value" validate:"min=1"`

	// PartitionChunk is the number of rows fetched per cursor round trip.
	PartitionChunk int `koanf:"partition_chunk" validate:"min=1"`

	// CountMode selects how $count=true is computed.
	CountMode string `koanf:"count_mode" validate:"count_mode"`

	// CountEstimateThreshold is the exact-count cutoff for the estimate modes.
	CountEstimateThreshold int `koanf:"count_estimate_threshold" validate:"min=1"`

	// EPSG is the SRID all incoming geometries must carry.
	EPSG int `koanf:"epsg" validate:"min=1"`

	// STAggregate selects the observedArea spatial aggregate.
	STAggregate string `koanf:"st_aggregate" validate:"st_aggregate"`
}

// VersioningConfig toggles the bitemporal (TravelTime) features.
type VersioningConfig struct {
	// Enabled turns on commit stamping and the $as_of / $from_to options.
	Enabled bool `koanf:"enabled"`
}

// SecurityConfig configures authentication.
type SecurityConfig struct {
	// Authorization enables JWT bearer authentication. The token subject
	// becomes the commit author on mutations when versioning is enabled,
	// and write transactions assume it as their database role via SET ROLE.
	Authorization bool `koanf:"authorization"`

	// AnonymousViewer permits unauthenticated reads when Authorization is on.
	AnonymousViewer bool `koanf:"anonymous_viewer"`

	// JWTSecret signs and verifies bearer tokens (HS256).
	JWTSecret string `koanf:"jwt_secret"`

	// RateLimitReqs and RateLimitWindow bound per-client request rates.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Service.Hostname == "" {
		return fmt.Errorf("service.hostname is required")
	}
	if !strings.HasPrefix(c.Service.Version, "/") {
		return fmt.Errorf("service.version %q must start with '/'", c.Service.Version)
	}
	if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "" {
		return fmt.Errorf("postgres host, database and user are required")
	}
	if c.Postgres.PoolSize < 1 {
		return fmt.Errorf("postgres.pool_size must be at least 1")
	}
	if c.Query.TopValue < 1 {
		return fmt.Errorf("query.top_value must be at least 1")
	}
	if c.Query.PartitionChunk < 1 {
		return fmt.Errorf("query.partition_chunk must be at least 1")
	}
	switch c.Query.CountMode {
	case CountModeFull, CountModeLimitEstimate, CountModeEstimateLimit:
	default:
		return fmt.Errorf("query.count_mode %q is not one of FULL, LIMIT_ESTIMATE, ESTIMATE_LIMIT", c.Query.CountMode)
	}
	switch c.Query.STAggregate {
	case STAggregateConvexHull, STAggregateExtent:
	default:
		return fmt.Errorf("query.st_aggregate %q is not one of CONVEX_HULL, EXTENT", c.Query.STAggregate)
	}
	if c.Query.EPSG <= 0 {
		return fmt.Errorf("query.epsg must be a positive SRID")
	}
	if c.Security.Authorization && c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required when authorization is enabled")
	}
	if c.Security.Authorization && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	return nil
}
