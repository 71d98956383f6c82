// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/istsos/sta-go/internal/query/ast"
)

func TestParseBasicOptions(t *testing.T) {
	t.Parallel()

	q, err := Parse("$top=10&$skip=20&$count=true")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if q.Top == nil || q.Top.Value != 10 {
		t.Errorf("Top = %+v, want 10", q.Top)
	}
	if q.Skip == nil || q.Skip.Value != 20 {
		t.Errorf("Skip = %+v, want 20", q.Skip)
	}
	if q.Count == nil || !q.Count.Value {
		t.Errorf("Count = %+v, want true", q.Count)
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	q, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\") failed: %v", err)
	}
	if q.Top != nil || q.Filter != nil || q.Expand != nil {
		t.Errorf("expected empty query node, got %+v", q)
	}
}

func TestParseSelect(t *testing.T) {
	t.Parallel()

	q, err := Parse("$select=name,description,unitOfMeasurement")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"name", "description", "unitOfMeasurement"}
	if len(q.Select.Items) != len(want) {
		t.Fatalf("Select = %v, want %v", q.Select.Items, want)
	}
	for i := range want {
		if q.Select.Items[i] != want[i] {
			t.Errorf("Select[%d] = %q, want %q", i, q.Select.Items[i], want[i])
		}
	}
}

func TestParseOrderBy(t *testing.T) {
	t.Parallel()

	q, err := Parse("$orderby=phenomenonTime desc, id")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	items := q.OrderBy.Items
	if len(items) != 2 {
		t.Fatalf("OrderBy = %v, want 2 items", items)
	}
	if items[0].Property != "phenomenonTime" || !items[0].Desc {
		t.Errorf("first item = %+v, want phenomenonTime desc", items[0])
	}
	if items[1].Property != "id" || items[1].Desc {
		t.Errorf("second item = %+v, want id asc", items[1])
	}
}

func TestParseFilterOption(t *testing.T) {
	t.Parallel()

	q, err := Parse("$filter=result gt 1.5 and name ne 'x'")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if q.Filter == nil || q.Filter.Expr == nil {
		t.Fatal("filter not parsed")
	}
	if q.Filter.Raw != "result gt 1.5 and name ne 'x'" {
		t.Errorf("Raw = %q", q.Filter.Raw)
	}
}

func TestParseExpandNested(t *testing.T) {
	t.Parallel()

	q, err := Parse("$expand=Observations($top=2;$count=true;$expand=FeatureOfInterest),Sensor")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(q.Expand.Items) != 2 {
		t.Fatalf("Expand = %v, want 2 items", q.Expand.Items)
	}
	obs := q.Expand.Items[0]
	if obs.Name != "Observations" || obs.Subquery == nil {
		t.Fatalf("first expand = %+v, want Observations with subquery", obs)
	}
	if obs.Subquery.Top == nil || obs.Subquery.Top.Value != 2 {
		t.Errorf("subquery top = %+v, want 2", obs.Subquery.Top)
	}
	if !obs.Subquery.IsSubquery {
		t.Error("subquery not marked IsSubquery")
	}
	if obs.Subquery.Expand == nil || obs.Subquery.Expand.Items[0].Name != "FeatureOfInterest" {
		t.Errorf("nested expand = %+v", obs.Subquery.Expand)
	}
	if q.Expand.Items[1].Name != "Sensor" || q.Expand.Items[1].Subquery != nil {
		t.Errorf("second expand = %+v, want bare Sensor", q.Expand.Items[1])
	}
}

func TestParseAsOf(t *testing.T) {
	t.Parallel()

	q, err := Parse("$as_of=2024-03-01T12:30:00Z")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if q.AsOf == nil || !q.AsOf.Value.Equal(want) {
		t.Errorf("AsOf = %+v, want %v", q.AsOf, want)
	}
}

func TestParseAsOfOffsetNormalizedToUTC(t *testing.T) {
	t.Parallel()

	q, err := Parse("$as_of=2024-03-01T14:00:00+02:00")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !q.AsOf.Value.Equal(want) {
		t.Errorf("AsOf = %v, want %v", q.AsOf.Value, want)
	}
	if q.AsOf.Value.Location() != time.UTC {
		t.Errorf("AsOf location = %v, want UTC", q.AsOf.Value.Location())
	}
}

func TestParseFromTo(t *testing.T) {
	t.Parallel()

	q, err := Parse("$from_to=2024-01-01T00:00:00Z,2024-02-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if q.FromTo == nil {
		t.Fatal("FromTo not parsed")
	}
	if !q.FromTo.From.Before(q.FromTo.To) {
		t.Errorf("interval = %v / %v", q.FromTo.From, q.FromTo.To)
	}
}

func TestParseResultFormat(t *testing.T) {
	t.Parallel()

	q, err := Parse("$resultFormat=dataArray")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !q.IsDataArray() {
		t.Error("IsDataArray() = false, want true")
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"as_of and from_to together", "$as_of=2024-01-01T00:00:00Z&$from_to=2024-01-01T00:00:00Z,2024-02-01T00:00:00Z"},
		{"resultFormat in subquery", "$expand=Observations($resultFormat=dataArray)"},
		{"negative top", "$top=-1"},
		{"negative skip", "$skip=-5"},
		{"count needs a bool", "$count=yes"},
		{"bad datetime", "$as_of=2024-13-40T99:00:00Z"},
		{"trailing garbage", "$top=5 extra"},
		{"missing separator", "$top=5$skip=2"},
		{"unknown option", "$limit=5"},
		{"unterminated expand", "$expand=Observations($top=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) succeeded, expected error", tt.input)
			}
		})
	}
}

func TestParseErrorType(t *testing.T) {
	t.Parallel()

	_, err := Parse("$top=abc")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseSubqueryAllOptions(t *testing.T) {
	t.Parallel()

	q, err := Parse("$expand=Observations($select=result;$filter=result gt 0;$orderby=phenomenonTime desc;$skip=1;$top=3)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sub := q.Expand.Items[0].Subquery
	if sub == nil {
		t.Fatal("subquery missing")
	}
	if sub.Select == nil || sub.Filter == nil || sub.OrderBy == nil {
		t.Errorf("subquery options missing: %+v", sub)
	}
	if sub.Skip.Value != 1 || sub.Top.Value != 3 {
		t.Errorf("subquery paging = %d/%d, want 1/3", sub.Skip.Value, sub.Top.Value)
	}
}

var parseSink *ast.QueryNode

func BenchmarkParse(b *testing.B) {
	const query = "$filter=result gt 1.5&$expand=Datastream($select=name)&$orderby=phenomenonTime desc&$top=100"
	for i := 0; i < b.N; i++ {
		q, err := Parse(query)
		if err != nil {
			b.Fatal(err)
		}
		parseSink = q
	}
}
