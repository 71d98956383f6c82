// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// NotFoundError reports a single-resource request that matched no row.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s(%d) not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

// ConflictError reports a uniqueness violation, e.g. two observations of the
// same datastream at the same phenomenonTime.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return e.Detail }

// RelatedNotFoundError reports a referenced related entity (deep insert by
// @iot.id, navigation rebinding) that does not exist.
type RelatedNotFoundError struct {
	Entity string
	ID     int64
}

func (e *RelatedNotFoundError) Error() string {
	return fmt.Sprintf("related %s(%d) not found", e.Entity, e.ID)
}

// PayloadError reports an invalid request body: missing required properties,
// malformed values, or navigations the entity does not have.
type PayloadError struct {
	Detail string
}

func (e *PayloadError) Error() string { return e.Detail }

// Postgres error codes the engine maps to API errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translateError maps driver errors onto the package's error types. Unknown
// errors pass through unchanged.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &ConflictError{Detail: conflictDetail(pgErr)}
		case pgForeignKeyViolation:
			return &PayloadError{Detail: "referenced entity does not exist"}
		}
	}
	return err
}

func conflictDetail(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName == "observation_datastream_phenomenon_time_key" {
		return "an observation with the same phenomenonTime already exists in this datastream"
	}
	return "entity violates a uniqueness constraint"
}
