// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package model

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"Thing", Thing, true},
		{"Things", Thing, true},
		{"FeatureOfInterest", FeatureOfInterest, true},
		{"FeaturesOfInterest", FeatureOfInterest, true},
		{"ObservedProperties", ObservedProperty, true},
		{"Commits", Commit, true},
		{"Gadget", "", false},
		{"thing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, ok := Lookup(tt.name)
			if ok != tt.ok {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if ok && e.Name != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.name, e.Name, tt.want)
			}
		})
	}
}

func TestNamesResolve(t *testing.T) {
	t.Parallel()

	names := Names()
	if len(names) != 9 {
		t.Fatalf("Names() has %d entries, want 9", len(names))
	}
	for _, name := range names {
		e, ok := Lookup(name)
		if !ok {
			t.Errorf("Names() entry %q does not resolve", name)
			continue
		}
		if e.Plural == "" || e.Table == "" {
			t.Errorf("entity %q incomplete: %+v", name, e)
		}
		if len(e.DefaultSelect) == 0 || e.DefaultSelect[0] != "id" {
			t.Errorf("entity %q DefaultSelect must lead with id: %v", name, e.DefaultSelect)
		}
	}
}

func TestTravelTimeTable(t *testing.T) {
	t.Parallel()

	if got := MustLookup(Thing).TravelTimeTable(); got != "thing_traveltime" {
		t.Errorf("TravelTimeTable = %q, want thing_traveltime", got)
	}
}

func TestColumnMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		property string
		column   string
	}{
		{"id", "id"},
		{"@iot.id", "id"},
		{"name", "name"},
		{"encodingType", "encoding_type"},
		{"unitOfMeasurement", "unit_of_measurement"},
		{"phenomenonTime", "phenomenon_time"},
		{"resultTime", "result_time"},
		{"systemTimeValidity", "system_time_validity"},
		{"actionType", "action_type"},
	}

	for _, tt := range tests {
		t.Run(tt.property, func(t *testing.T) {
			t.Parallel()
			if got := Column(tt.property); got != tt.column {
				t.Errorf("Column(%q) = %q, want %q", tt.property, got, tt.column)
			}
		})
	}
}

func TestPropertyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, property := range []string{"encodingType", "phenomenonTime", "name", "properties"} {
		if got := Property(Column(property)); got != property {
			t.Errorf("Property(Column(%q)) = %q", property, got)
		}
	}
}

func TestColumnKinds(t *testing.T) {
	t.Parallel()

	if !IsGeometry(Location, "location") || !IsGeometry(FeatureOfInterest, "feature") {
		t.Error("geometry columns not recognized")
	}
	if IsGeometry(Thing, "properties") {
		t.Error("Thing.properties flagged as geometry")
	}
	if !IsRange(Observation, "phenomenonTime") || !IsRange(Datastream, "resultTime") {
		t.Error("range columns not recognized")
	}
	if !IsRange(Thing, "systemTimeValidity") {
		t.Error("systemTimeValidity must be range-valued on every entity")
	}
	if IsRange(Observation, "resultTime") {
		t.Error("Observation.resultTime is an instant, not a range")
	}
	if !IsJSON(Thing, "properties") || !IsJSON(Datastream, "unitOfMeasurement") {
		t.Error("jsonb columns not recognized")
	}
	if IsJSON(Thing, "name") {
		t.Error("Thing.name flagged as jsonb")
	}
}

func TestNavigationNamesResolve(t *testing.T) {
	t.Parallel()

	for _, entity := range Names() {
		for _, nav := range NavigationNames(entity) {
			rel, ok := LookupRelationship(entity, nav)
			if !ok {
				t.Errorf("%s: navigation %q has no relationship", entity, nav)
				continue
			}
			if rel.Name != nav {
				t.Errorf("%s/%s: relationship name %q", entity, nav, rel.Name)
			}
			if _, ok := Lookup(rel.Target); !ok {
				t.Errorf("%s/%s: unknown target %q", entity, nav, rel.Target)
			}
			switch rel.Cardinality {
			case ManyToOne, OneToMany:
				if rel.FKColumn == "" {
					t.Errorf("%s/%s: missing FKColumn", entity, nav)
				}
			case ManyToMany:
				if rel.LinkTable == "" || rel.LinkOwnerFK == "" || rel.LinkTargetFK == "" {
					t.Errorf("%s/%s: incomplete link table: %+v", entity, nav, rel)
				}
			}
		}
	}
}

func TestManyToManyMirrored(t *testing.T) {
	t.Parallel()

	fwd, _ := LookupRelationship(Thing, "Locations")
	rev, _ := LookupRelationship(Location, "Things")
	if fwd.LinkTable != rev.LinkTable {
		t.Fatalf("link tables differ: %q vs %q", fwd.LinkTable, rev.LinkTable)
	}
	if fwd.LinkOwnerFK != rev.LinkTargetFK || fwd.LinkTargetFK != rev.LinkOwnerFK {
		t.Errorf("link FKs not mirrored: %+v vs %+v", fwd, rev)
	}
}

func TestEveryVersionedEntityHasCommit(t *testing.T) {
	t.Parallel()

	for _, entity := range Names() {
		if entity == Commit {
			if len(NavigationNames(Commit)) != 0 {
				t.Error("Commit must not navigate anywhere")
			}
			continue
		}
		rel, ok := LookupRelationship(entity, "Commit")
		if !ok || rel.Target != Commit || rel.Cardinality != ManyToOne {
			t.Errorf("%s: Commit navigation = %+v, ok = %v", entity, rel, ok)
		}
	}
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		typ  ResultType
	}{
		{"integer", "21", ResultTypeNumber},
		{"float", "21.7", ResultTypeNumber},
		{"bool", "true", ResultTypeBoolean},
		{"string", `"wet"`, ResultTypeString},
		{"object", `{"value": 1}`, ResultTypeJSON},
		{"array", "[1, 2, 3]", ResultTypeJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := ParseResult(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseResult(%s) failed: %v", tt.raw, err)
			}
			if r.Type != tt.typ {
				t.Errorf("type = %v, want %v", r.Type, tt.typ)
			}
		})
	}
}

func TestParseResultValues(t *testing.T) {
	t.Parallel()

	r, err := ParseResult(json.RawMessage("21.7"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Number != 21.7 {
		t.Errorf("Number = %v", r.Number)
	}
	if v, ok := r.Value().(float64); !ok || v != 21.7 {
		t.Errorf("Value() = %v", r.Value())
	}

	r, err = ParseResult(json.RawMessage(`"dry"`))
	if err != nil {
		t.Fatal(err)
	}
	if r.String != "dry" {
		t.Errorf("String = %q", r.String)
	}
}

func TestParseResultRejectsNull(t *testing.T) {
	t.Parallel()

	if _, err := ParseResult(json.RawMessage("null")); err == nil {
		t.Error("null result accepted")
	}
	if _, err := ParseResult(json.RawMessage("{broken")); err == nil {
		t.Error("malformed JSON accepted")
	}
}

func TestResultColumnValues(t *testing.T) {
	t.Parallel()

	s, n, b, j := Result{Type: ResultTypeNumber, Number: 3}.ColumnValues()
	if s != nil || b != nil || j != nil {
		t.Errorf("unused columns not nil: %v %v %v", s, b, j)
	}
	if n.(float64) != 3 {
		t.Errorf("number column = %v", n)
	}

	s, n, b, j = Result{Type: ResultTypeJSON, JSON: json.RawMessage(`[1]`)}.ColumnValues()
	if s != nil || n != nil || b != nil {
		t.Errorf("unused columns not nil: %v %v %v", s, n, b)
	}
	if string(j.([]byte)) != "[1]" {
		t.Errorf("json column = %s", j)
	}
}

func TestResultTypeColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ ResultType
		col string
	}{
		{ResultTypeNumber, ResultNumberColumn},
		{ResultTypeBoolean, ResultBooleanColumn},
		{ResultTypeJSON, ResultJSONColumn},
		{ResultTypeString, ResultStringColumn},
	}
	for _, tt := range tests {
		if got := tt.typ.Column(); got != tt.col {
			t.Errorf("ResultType(%d).Column() = %q, want %q", tt.typ, got, tt.col)
		}
	}
	if ResultType(9).Column() != "" {
		t.Error("unknown type must map to empty column")
	}
}

func TestMustLookupPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Error("MustLookup on unknown entity did not panic")
		} else if !strings.Contains(r.(string), "unknown entity") {
			t.Errorf("panic = %v", r)
		}
	}()
	MustLookup("Gadget")
}
