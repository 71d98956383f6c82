// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package temporal rewrites query trees carrying $as_of or $from_to so the
// compiler reads the system-time (TravelTime) shadow tables.
//
// The rewrite normalizes the timestamps to UTC with second precision, marks
// every affected node TravelTime, and propagates $as_of into each nested
// $expand subquery. Commit is exempt: provenance records are not versioned.
// $from_to permits no expand other than Commit.
package temporal

import (
	"errors"
	"fmt"
	"time"

	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
)

// ErrAsOfInFuture rejects $as_of instants after the server's current time.
var ErrAsOfInFuture = errors.New("$as_of must not be in the future")

// ErrFromToInverted rejects $from_to intervals whose lower bound exceeds the
// upper bound.
var ErrFromToInverted = errors.New("$from_to lower bound is after the upper bound")

// ExpandError rejects $expand of a versioned entity under $from_to.
type ExpandError struct {
	Nav string
}

func (e *ExpandError) Error() string {
	return fmt.Sprintf("$from_to does not allow expanding %q (only Commit)", e.Nav)
}

// Resolve applies the bitemporal rewrite to the query tree rooted at entity.
// Queries without $as_of or $from_to are returned untouched.
func Resolve(entity string, q *ast.QueryNode, now time.Time) error {
	if q.AsOf == nil && q.FromTo == nil {
		return nil
	}

	if q.AsOf != nil {
		asOf := q.AsOf.Value.UTC().Truncate(time.Second)
		if asOf.After(now) {
			return ErrAsOfInFuture
		}
		q.AsOf.Value = asOf
		return resolveAsOf(entity, q, asOf)
	}

	from := q.FromTo.From.UTC().Truncate(time.Second)
	to := q.FromTo.To.UTC().Truncate(time.Second)
	if from.After(to) {
		return ErrFromToInverted
	}
	q.FromTo.From, q.FromTo.To = from, to
	return resolveFromTo(entity, q)
}

// resolveAsOf marks the node and recurses into every expanded subquery,
// stamping the same instant. Commit expansions are left untouched.
func resolveAsOf(entity string, q *ast.QueryNode, asOf time.Time) error {
	if entity != model.Commit {
		q.TravelTime = true
	}
	if q.Expand == nil {
		return nil
	}
	for _, item := range q.Expand.Items {
		rel, ok := model.LookupRelationship(entity, item.Name)
		if !ok {
			// leave unknown navigations for the compiler to reject
			continue
		}
		if rel.Target == model.Commit {
			continue
		}
		if item.Subquery == nil {
			item.Subquery = &ast.QueryNode{IsSubquery: true}
		}
		item.Subquery.AsOf = &ast.AsOfNode{Value: asOf}
		if err := resolveAsOf(rel.Target, item.Subquery, asOf); err != nil {
			return err
		}
	}
	return nil
}

// resolveFromTo marks the root only. Expanding anything but Commit under
// $from_to is a fatal error.
func resolveFromTo(entity string, q *ast.QueryNode) error {
	if entity != model.Commit {
		q.TravelTime = true
	}
	if q.Expand == nil {
		return nil
	}
	for _, item := range q.Expand.Items {
		rel, ok := model.LookupRelationship(entity, item.Name)
		if ok && rel.Target == model.Commit {
			continue
		}
		return &ExpandError{Nav: item.Name}
	}
	return nil
}
