// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("default configuration invalid: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"missing hostname", func(c *Config) { c.Service.Hostname = "" }, "service.hostname"},
		{"version without slash", func(c *Config) { c.Service.Version = "v1.1" }, "service.version"},
		{"missing postgres host", func(c *Config) { c.Postgres.Host = "" }, "postgres"},
		{"pool size zero", func(c *Config) { c.Postgres.PoolSize = 0 }, "pool_size"},
		{"top value zero", func(c *Config) { c.Query.TopValue = 0 }, "top_value"},
		{"partition chunk zero", func(c *Config) { c.Query.PartitionChunk = 0 }, "partition_chunk"},
		{"bad count mode", func(c *Config) { c.Query.CountMode = "GUESS" }, "count_mode"},
		{"bad st aggregate", func(c *Config) { c.Query.STAggregate = "UNION" }, "st_aggregate"},
		{"epsg zero", func(c *Config) { c.Query.EPSG = 0 }, "epsg"},
		{"auth without secret", func(c *Config) { c.Security.Authorization = true }, "jwt_secret"},
		{
			"auth with short secret",
			func(c *Config) {
				c.Security.Authorization = true
				c.Security.JWTSecret = "short"
			},
			"32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsAllCountModes(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{CountModeFull, CountModeLimitEstimate, CountModeEstimateLimit} {
		cfg := defaultConfig()
		cfg.Query.CountMode = mode
		if err := cfg.Validate(); err != nil {
			t.Errorf("count mode %s rejected: %v", mode, err)
		}
	}
}

func TestServiceURLs(t *testing.T) {
	t.Parallel()

	s := ServiceConfig{Hostname: "http://example.org:8018", Subpath: "/istsos4", Version: "/v1.1"}
	if got := s.RootURL(); got != "http://example.org:8018/istsos4/v1.1" {
		t.Errorf("RootURL = %q", got)
	}
	if got := s.RootPath(); got != "/istsos4/v1.1" {
		t.Errorf("RootPath = %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	p := PostgresConfig{
		Host:     "db",
		ReadHost: "replica",
		Port:     5432,
		User:     "sta",
		Password: "p@ss:word",
		Database: "istsos",
	}
	want := "postgres://sta:p%40ss%3Aword@db:5432/istsos"
	if got := p.WriteDSN(); got != want {
		t.Errorf("WriteDSN = %q, want %q", got, want)
	}
	if got := p.ReadDSN(); !strings.Contains(got, "@replica:") {
		t.Errorf("ReadDSN = %q, want replica host", got)
	}

	p.ReadHost = ""
	if got := p.ReadDSN(); got != want {
		t.Errorf("ReadDSN without replica = %q, want %q", got, want)
	}
}

func TestEnvTransform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		path string
	}{
		{"HOSTNAME", "service.hostname"},
		{"POSTGRES_DB", "postgres.database"},
		{"PG_POOL_SIZE", "postgres.pool_size"},
		{"TOP_VALUE", "query.top_value"},
		{"COUNT_MODE", "query.count_mode"},
		{"VERSIONING", "versioning.enabled"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.path {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.path)
		}
	}
}
