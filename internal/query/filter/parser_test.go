// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package filter

import (
	"errors"
	"testing"

	"github.com/istsos/sta-go/internal/query/ast"
)

func TestParseComparison(t *testing.T) {
	t.Parallel()

	expr, err := Parse("result eq 3")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected BinaryExpr, got %T", expr)
	}
	if bin.Op != "eq" {
		t.Errorf("op = %q, want eq", bin.Op)
	}
	member, ok := bin.Left.(*ast.MemberExpr)
	if !ok || len(member.Path) != 1 || member.Path[0] != "result" {
		t.Errorf("left = %#v, want member result", bin.Left)
	}
	lit, ok := bin.Right.(*ast.LiteralExpr)
	if !ok || lit.Kind != ast.LiteralNumber || lit.Value != "3" {
		t.Errorf("right = %#v, want number literal 3", bin.Right)
	}
}

func TestParsePrecedence(t *testing.T) {
	t.Parallel()

	// or binds loosest: (a eq 1 and b eq 2) or c eq 3
	expr, err := Parse("a eq 1 and b eq 2 or c eq 3")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	or, ok := expr.(*ast.BinaryExpr)
	if !ok || or.Op != "or" {
		t.Fatalf("root = %#v, want or", expr)
	}
	and, ok := or.Left.(*ast.BinaryExpr)
	if !ok || and.Op != "and" {
		t.Fatalf("left of or = %#v, want and", or.Left)
	}
}

func TestParseArithmeticPrecedence(t *testing.T) {
	t.Parallel()

	// mul binds tighter than add: result add (x mul 2) gt 10
	expr, err := Parse("result add x mul 2 gt 10")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cmp := expr.(*ast.BinaryExpr)
	if cmp.Op != "gt" {
		t.Fatalf("root op = %q, want gt", cmp.Op)
	}
	add := cmp.Left.(*ast.BinaryExpr)
	if add.Op != "add" {
		t.Fatalf("left op = %q, want add", add.Op)
	}
	mul, ok := add.Right.(*ast.BinaryExpr)
	if !ok || mul.Op != "mul" {
		t.Fatalf("right of add = %#v, want mul", add.Right)
	}
}

func TestParseNot(t *testing.T) {
	t.Parallel()

	expr, err := Parse("not name eq 'x'")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	un, ok := expr.(*ast.UnaryExpr)
	if !ok || un.Op != "not" {
		t.Fatalf("root = %#v, want not", expr)
	}
}

func TestParseIn(t *testing.T) {
	t.Parallel()

	expr, err := Parse("result in (1, 2, 3)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	bin := expr.(*ast.BinaryExpr)
	if bin.Op != "in" {
		t.Fatalf("op = %q, want in", bin.Op)
	}
	list, ok := bin.Right.(*ast.ListExpr)
	if !ok || len(list.Items) != 3 {
		t.Fatalf("right = %#v, want 3-item list", bin.Right)
	}
}

func TestParseMemberPath(t *testing.T) {
	t.Parallel()

	expr, err := Parse("Datastream/Sensor/name eq 'dht22'")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	member := expr.(*ast.BinaryExpr).Left.(*ast.MemberExpr)
	want := []string{"Datastream", "Sensor", "name"}
	if len(member.Path) != len(want) {
		t.Fatalf("path = %v, want %v", member.Path, want)
	}
	for i := range want {
		if member.Path[i] != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, member.Path[i], want[i])
		}
	}
}

func TestParseLiterals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		kind  ast.LiteralKind
		value string
	}{
		{"string", "name eq 'abc'", ast.LiteralString, "abc"},
		{"escaped quote", "name eq 'it''s'", ast.LiteralString, "it's"},
		{"float", "result gt 1.5", ast.LiteralNumber, "1.5"},
		{"scientific", "result lt 1e-3", ast.LiteralNumber, "1e-3"},
		{"negative", "result ge -2", ast.LiteralNumber, "-2"},
		{"bool", "ok eq true", ast.LiteralBool, "true"},
		{"null", "resultTime eq null", ast.LiteralNull, "null"},
		{"datetime", "resultTime lt 2024-03-01T00:00:00Z", ast.LiteralDateTime, "2024-03-01T00:00:00Z"},
		{"geometry", "st_within(location, geography'POINT (8 44)')", ast.LiteralGeometry, "POINT (8 44)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			expr, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			lit := findLiteral(expr, tt.kind)
			if lit == nil {
				t.Fatalf("no %v literal found in %#v", tt.kind, expr)
			}
			if lit.Value != tt.value {
				t.Errorf("literal value = %q, want %q", lit.Value, tt.value)
			}
		})
	}
}

// findLiteral walks the tree for the first literal of the given kind.
func findLiteral(expr ast.Expr, kind ast.LiteralKind) *ast.LiteralExpr {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		if e.Kind == kind {
			return e
		}
	case *ast.BinaryExpr:
		if lit := findLiteral(e.Left, kind); lit != nil {
			return lit
		}
		return findLiteral(e.Right, kind)
	case *ast.UnaryExpr:
		return findLiteral(e.Expr, kind)
	case *ast.CallExpr:
		for _, arg := range e.Args {
			if lit := findLiteral(arg, kind); lit != nil {
				return lit
			}
		}
	case *ast.ListExpr:
		for _, item := range e.Items {
			if lit := findLiteral(item, kind); lit != nil {
				return lit
			}
		}
	}
	return nil
}

func TestParseCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		fn    string
		args  int
	}{
		{"substringof('uno', name)", "substringof", 2},
		{"startswith(name, 'net')", "startswith", 2},
		{"length(name) gt 3", "length", 1},
		{"substring(name, 1) eq 'x'", "substring", 2},
		{"substring(name, 1, 2) eq 'x'", "substring", 3},
		{"concat(name, description) ne 'y'", "concat", 2},
		{"year(resultTime) eq 2024", "year", 1},
		{"now() gt resultTime", "now", 0},
		{"round(result) eq 2", "round", 1},
		{"geo.distance(location, geography'POINT (8 44)') lt 100", "geo.distance", 2},
		{"st_relate(location, geography'POINT (8 44)', 'T*****FF*')", "st_relate", 3},
	}

	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			t.Parallel()
			expr, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			call := findCall(expr, tt.fn)
			if call == nil {
				t.Fatalf("no call to %s found", tt.fn)
			}
			if len(call.Args) != tt.args {
				t.Errorf("%s has %d args, want %d", tt.fn, len(call.Args), tt.args)
			}
		})
	}
}

func findCall(expr ast.Expr, name string) *ast.CallExpr {
	switch e := expr.(type) {
	case *ast.CallExpr:
		if e.Func == name {
			return e
		}
		for _, arg := range e.Args {
			if c := findCall(arg, name); c != nil {
				return c
			}
		}
	case *ast.BinaryExpr:
		if c := findCall(e.Left, name); c != nil {
			return c
		}
		return findCall(e.Right, name)
	case *ast.UnaryExpr:
		return findCall(e.Expr, name)
	}
	return nil
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", "name eq 'abc"},
		{"trailing input", "result eq 1 2"},
		{"missing operand", "result eq"},
		{"unbalanced paren", "(result eq 1"},
		{"bad in list", "result in (1, 2"},
		{"wrong arity", "length(name, description) gt 1"},
		{"substring too many args", "substring(name, 1, 2, 3) eq 'x'"},
		{"empty input", ""},
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

func TestParseUnsupportedFunction(t *testing.T) {
	t.Parallel()

	_, err := Parse("matchesPattern(name, '^S')")
	var unsupported *UnsupportedFunctionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFunctionError, got %v", err)
	}
	if unsupported.Name != "matchesPattern" {
		t.Errorf("function name = %q, want matchesPattern", unsupported.Name)
	}
}

func FuzzParse(f *testing.F) {
	f.Add("result eq 3")
	f.Add("not (a eq 1 or b/c ne 'x')")
	f.Add("st_within(location, geography'POINT (8 44)')")
	f.Add("result add 1 mul 2 in (1, 2.5, 3e1)")
	f.Fuzz(func(t *testing.T, input string) {
		// must never panic; errors are fine
		_, _ = Parse(input)
	})
}
