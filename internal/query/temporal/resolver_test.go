// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestResolveNoSystemTime(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{Top: &ast.TopNode{Value: 5}}
	if err := Resolve(model.Thing, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if q.TravelTime {
		t.Error("TravelTime set without $as_of")
	}
}

func TestResolveAsOf(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2024, 3, 1, 10, 30, 45, 123456789, time.UTC)
	q := &ast.QueryNode{AsOf: &ast.AsOfNode{Value: asOf}}
	if err := Resolve(model.Thing, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !q.TravelTime {
		t.Error("TravelTime not set")
	}
	want := time.Date(2024, 3, 1, 10, 30, 45, 0, time.UTC)
	if !q.AsOf.Value.Equal(want) {
		t.Errorf("AsOf = %v, want second-truncated %v", q.AsOf.Value, want)
	}
}

func TestResolveAsOfInFuture(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{AsOf: &ast.AsOfNode{Value: now.Add(time.Hour)}}
	if err := Resolve(model.Thing, q, now); !errors.Is(err, ErrAsOfInFuture) {
		t.Fatalf("err = %v, want ErrAsOfInFuture", err)
	}
}

func TestResolveAsOfPropagatesIntoExpand(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	inner := &ast.ExpandItem{Name: "Observations"}
	q := &ast.QueryNode{
		AsOf: &ast.AsOfNode{Value: asOf},
		Expand: &ast.ExpandNode{Items: []*ast.ExpandItem{
			{Name: "Observations", Subquery: &ast.QueryNode{
				IsSubquery: true,
				Expand:     &ast.ExpandNode{Items: []*ast.ExpandItem{inner}},
			}},
		}},
	}
	// root is Datastream; Observations expands one level, and the nested
	// item is deliberately invalid for Observation and must be skipped
	if err := Resolve(model.Datastream, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	sub := q.Expand.Items[0].Subquery
	if !sub.TravelTime {
		t.Error("expanded subquery not marked TravelTime")
	}
	if sub.AsOf == nil || !sub.AsOf.Value.Equal(asOf) {
		t.Errorf("subquery AsOf = %+v, want %v", sub.AsOf, asOf)
	}
	if inner.Subquery != nil && inner.Subquery.TravelTime {
		t.Error("unknown navigation was rewritten")
	}
}

func TestResolveAsOfCreatesMissingSubquery(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q := &ast.QueryNode{
		AsOf:   &ast.AsOfNode{Value: asOf},
		Expand: &ast.ExpandNode{Items: []*ast.ExpandItem{{Name: "Datastreams"}}},
	}
	if err := Resolve(model.Thing, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	sub := q.Expand.Items[0].Subquery
	if sub == nil || !sub.TravelTime || sub.AsOf == nil {
		t.Fatalf("bare expand item not rewritten: %+v", sub)
	}
}

func TestResolveAsOfLeavesCommitExpandAlone(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{
		AsOf:   &ast.AsOfNode{Value: now.Add(-time.Hour)},
		Expand: &ast.ExpandNode{Items: []*ast.ExpandItem{{Name: "Commit"}}},
	}
	if err := Resolve(model.Thing, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if q.Expand.Items[0].Subquery != nil {
		t.Errorf("Commit expand rewritten: %+v", q.Expand.Items[0].Subquery)
	}
}

func TestResolveCommitRootIsNotVersioned(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{AsOf: &ast.AsOfNode{Value: now.Add(-time.Hour)}}
	if err := Resolve(model.Commit, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if q.TravelTime {
		t.Error("Commit marked TravelTime")
	}
}

func TestResolveFromTo(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	q := &ast.QueryNode{FromTo: &ast.FromToNode{From: from, To: to}}
	if err := Resolve(model.Sensor, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !q.TravelTime {
		t.Error("TravelTime not set")
	}
}

func TestResolveFromToInverted(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{FromTo: &ast.FromToNode{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	if err := Resolve(model.Sensor, q, now); !errors.Is(err, ErrFromToInverted) {
		t.Fatalf("err = %v, want ErrFromToInverted", err)
	}
}

func TestResolveFromToRejectsExpand(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{
		FromTo: &ast.FromToNode{
			From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		Expand: &ast.ExpandNode{Items: []*ast.ExpandItem{{Name: "Datastreams"}}},
	}
	err := Resolve(model.Thing, q, now)
	var expandErr *ExpandError
	if !errors.As(err, &expandErr) {
		t.Fatalf("err = %v, want ExpandError", err)
	}
	if expandErr.Nav != "Datastreams" {
		t.Errorf("Nav = %q, want Datastreams", expandErr.Nav)
	}
}

func TestResolveFromToAllowsCommitExpand(t *testing.T) {
	t.Parallel()

	q := &ast.QueryNode{
		FromTo: &ast.FromToNode{
			From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		Expand: &ast.ExpandNode{Items: []*ast.ExpandItem{{Name: "Commit"}}},
	}
	if err := Resolve(model.Thing, q, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
}
