// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package parser

import (
	"errors"
	"testing"

	"github.com/istsos/sta-go/internal/model"
)

func TestParsePathCollection(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Things")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if len(rp.Segments) != 1 {
		t.Fatalf("segments = %v", rp.Segments)
	}
	if rp.Segments[0].Entity != model.Thing || rp.Segments[0].ID != nil {
		t.Errorf("segment = %+v, want Thing collection", rp.Segments[0])
	}
}

func TestParsePathWithID(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Datastreams(42)")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	seg := rp.Last()
	if seg.Entity != model.Datastream || seg.ID == nil || *seg.ID != 42 {
		t.Errorf("segment = %+v, want Datastream(42)", seg)
	}
}

func TestParsePathNavigation(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Things(1)/Datastreams(2)/Observations")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if len(rp.Segments) != 3 {
		t.Fatalf("segments = %v", rp.Segments)
	}
	if rp.Segments[1].Entity != model.Datastream || rp.Segments[1].Nav != "Datastreams" {
		t.Errorf("segment 1 = %+v", rp.Segments[1])
	}
	if rp.Last().Entity != model.Observation || rp.Last().ID != nil {
		t.Errorf("last segment = %+v, want Observations collection", rp.Last())
	}
}

func TestParsePathToOneNavigation(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Observations(7)/Datastream")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	last := rp.Last()
	if last.Entity != model.Datastream || last.Nav != "Datastream" || last.ID != nil {
		t.Errorf("last segment = %+v", last)
	}
}

func TestParsePathProperty(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Things(1)/name")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if rp.Property != "name" || rp.Value {
		t.Errorf("Property = %q, Value = %v", rp.Property, rp.Value)
	}
}

func TestParsePathValue(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Observations(3)/result/$value")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if rp.Property != "result" || !rp.Value {
		t.Errorf("Property = %q, Value = %v", rp.Property, rp.Value)
	}
}

func TestParsePathRef(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Datastreams(4)/Observations/$ref")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if !rp.Ref {
		t.Error("Ref = false, want true")
	}
	if rp.Last().Entity != model.Observation {
		t.Errorf("last = %+v", rp.Last())
	}
}

func TestParsePathErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{"empty", "/"},
		{"unknown root", "/Gadgets"},
		{"unknown navigation", "/Things(1)/Gadgets"},
		{"property with id", "/Things(1)/name(2)"},
		{"segment after property", "/Things(1)/name/description"},
		{"value without property", "/Things(1)/$value"},
		{"ref after property", "/Things(1)/name/$ref"},
		{"malformed id", "/Things(abc)"},
		{"navigation off a collection property", "/Observations(1)/result/Datastream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePath(tt.path)
			var pathErr *PathError
			if !errors.As(err, &pathErr) {
				t.Errorf("ParsePath(%q) = %v, expected PathError", tt.path, err)
			}
		})
	}
}

func TestParsePathSingularAlias(t *testing.T) {
	t.Parallel()

	// first segment accepts both singular and plural spellings
	rp, err := ParsePath("/Thing(1)")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if rp.Segments[0].Entity != model.Thing {
		t.Errorf("entity = %q, want Thing", rp.Segments[0].Entity)
	}
}

func TestParsePathCommits(t *testing.T) {
	t.Parallel()

	rp, err := ParsePath("/Commits(5)")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if rp.Last().Entity != model.Commit || *rp.Last().ID != 5 {
		t.Errorf("segment = %+v", rp.Last())
	}
}
