// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/istsos/sta-go/internal/validation"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sta-go/config.yaml",
	"/etc/sta-go/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:    "0.0.0.0",
			Port:    8018,
			Timeout: 30 * time.Second,
		},
		Service: ServiceConfig{
			Hostname: "http://localhost:8018",
			Subpath:  "/istsos4",
			Version:  "/v1.1",
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			ReadHost:     "",
			Port:         5432,
			User:         "postgres",
			Password:     "",
			Database:     "istsos",
			PoolSize:     10,
			PoolTimeout:  30 * time.Second,
			MaxOverflow:  0,
			QueryTimeout: 0, // 0 = delegate to the database
		},
		Query: QueryConfig{
			TopValue:               100,
			PartitionChunk:         10000,
			CountMode:              CountModeFull,
			CountEstimateThreshold: 10000,
			EPSG:                   4326,
			STAggregate:            STAggregateConvexHull,
		},
		Versioning: VersioningConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			Authorization:   false,
			AnonymousViewer: false,
			JWTSecret:       "",
			RateLimitReqs:   0, // 0 = unlimited
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Defaults: built-in values
//  2. Config file: optional YAML (if present)
//  3. Environment variables: highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HOSTNAME -> service.hostname, PG_POOL_SIZE -> postgres.pool_size, ...
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validation.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive through the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps recognized environment variable names to koanf paths.
// Unmapped keys return "" so random environment variables never pollute the
// configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Service URL surface
		"hostname": "service.hostname",
		"subpath":  "service.subpath",
		"version":  "service.version",

		// HTTP listener
		"http_host":    "http.host",
		"http_port":    "http.port",
		"http_timeout": "http.timeout",

		// PostgreSQL connection
		"postgres_host":      "postgres.host",
		"postgres_read_host": "postgres.read_host",
		"postgres_port":      "postgres.port",
		"postgres_user":      "postgres.user",
		"postgres_password":  "postgres.password",
		"postgres_db":        "postgres.database",
		"pg_pool_size":       "postgres.pool_size",
		"pg_pool_timeout":    "postgres.pool_timeout",
		"pg_max_overflow":    "postgres.max_overflow",
		"pg_query_timeout":   "postgres.query_timeout",

		// Query engine
		"top_value":                "query.top_value",
		"partition_chunk":          "query.partition_chunk",
		"count_mode":               "query.count_mode",
		"count_estimate_threshold": "query.count_estimate_threshold",
		"epsg":                     "query.epsg",
		"st_aggregate":             "query.st_aggregate",

		// Versioning and security
		"versioning":        "versioning.enabled",
		"authorization":     "security.authorization",
		"anonymous_viewer":  "security.anonymous_viewer",
		"jwt_secret":        "security.jwt_secret",
		"rate_limit_reqs":   "security.rate_limit_reqs",
		"rate_limit_window": "security.rate_limit_window",
		"cors_origins":      "security.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
