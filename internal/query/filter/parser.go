// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package filter parses the OData $filter sub-language into a boolean
// expression tree (ast.Expr).
//
// The accepted grammar is the STA subset of OData: comparisons, logical
// operators, arithmetic, "in", the string/datetime/math function set, and the
// geo.* / st_* geospatial predicates. Identifiers may traverse relationships
// ("Datastream/Sensor/name"); the compiler turns those into joins.
//
// Operator precedence, loosest first: or, and, not, comparisons/in,
// add/sub, mul/div/mod, primary.
package filter

import (
	"regexp"
	"strings"

	"github.com/istsos/sta-go/internal/query/ast"
)

// supportedFunctions maps each accepted function to its arity. Negative
// values mean "at least -n" (substring takes 2 or 3 args, concat 2 or more).
// Anything else raises an UnsupportedFunctionError.
var supportedFunctions = map[string]int{
	// string functions
	"substringof": 2,
	"endswith":    2,
	"startswith":  2,
	"length":      1,
	"indexof":     2,
	"substring":   -2,
	"tolower":     1,
	"toupper":     1,
	"trim":        1,
	"concat":      -2,
	// datetime functions
	"year":               1,
	"month":              1,
	"day":                1,
	"hour":               1,
	"minute":             1,
	"second":             1,
	"fractionalseconds":  1,
	"date":               1,
	"time":               1,
	"now":                0,
	"totaloffsetminutes": 1,
	// math functions
	"round":   1,
	"floor":   1,
	"ceiling": 1,
	// geospatial
	"geo.distance":   2,
	"geo.length":     1,
	"geo.intersects": 2,
	"st_equals":      2,
	"st_disjoint":    2,
	"st_touches":     2,
	"st_within":      2,
	"st_overlaps":    2,
	"st_crosses":     2,
	"st_intersects":  2,
	"st_contains":    2,
	"st_relate":      3,
}

var comparisonOps = map[string]bool{
	"eq": true, "ne": true, "lt": true, "gt": true, "le": true, "ge": true,
}

// token kinds internal to the filter scanner.
type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokString
	tokDateTime
	tokBool
	tokNull
	tokGeometry
	tokLParen
	tokRParen
	tokComma
	tokSlash
	tokEOF
)

type tok struct {
	kind tokKind
	val  string
	pos  int
}

var (
	dateTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`)
	numberRe   = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?`)
	identRe    = regexp.MustCompile(`^[A-Za-z_@][A-Za-z0-9_.]*`)
)

// scan tokenizes a filter expression body.
func scan(input string) ([]tok, error) {
	var toks []tok
	pos := 0
	for pos < len(input) {
		rest := input[pos:]
		c := rest[0]
		switch {
		case c == ' ' || c == '\t':
			pos++
		case c == '(':
			toks = append(toks, tok{tokLParen, "(", pos})
			pos++
		case c == ')':
			toks = append(toks, tok{tokRParen, ")", pos})
			pos++
		case c == ',':
			toks = append(toks, tok{tokComma, ",", pos})
			pos++
		case c == '/':
			toks = append(toks, tok{tokSlash, "/", pos})
			pos++
		case c == '\'':
			val, n, ok := scanString(rest)
			if !ok {
				return nil, &ParseError{Message: "unterminated string literal", Pos: pos}
			}
			toks = append(toks, tok{tokString, val, pos})
			pos += n
		default:
			if m := dateTimeRe.FindString(rest); m != "" {
				toks = append(toks, tok{tokDateTime, m, pos})
				pos += len(m)
				continue
			}
			if m := numberRe.FindString(rest); m != "" {
				toks = append(toks, tok{tokNumber, m, pos})
				pos += len(m)
				continue
			}
			if m := identRe.FindString(rest); m != "" {
				// geography'...'/geometry'...' literals carry WKT
				if (m == "geography" || m == "geometry") && len(rest) > len(m) && rest[len(m)] == '\'' {
					val, n, ok := scanString(rest[len(m):])
					if !ok {
						return nil, &ParseError{Message: "unterminated geometry literal", Pos: pos}
					}
					toks = append(toks, tok{tokGeometry, val, pos})
					pos += len(m) + n
					continue
				}
				switch m {
				case "true", "false":
					toks = append(toks, tok{tokBool, m, pos})
				case "null":
					toks = append(toks, tok{tokNull, m, pos})
				default:
					toks = append(toks, tok{tokIdent, m, pos})
				}
				pos += len(m)
				continue
			}
			return nil, &ParseError{Message: "unexpected character " + string(c), Pos: pos}
		}
	}
	toks = append(toks, tok{tokEOF, "", len(input)})
	return toks, nil
}

// scanString consumes a single-quoted literal with '' as the escaped quote.
// Returns the unescaped value and consumed length.
func scanString(rest string) (string, int, bool) {
	var b strings.Builder
	for i := 1; i < len(rest); i++ {
		if rest[i] == '\'' {
			if i+1 < len(rest) && rest[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			return b.String(), i + 1, true
		}
		b.WriteByte(rest[i])
	}
	return "", 0, false
}

// Parse parses a $filter expression body into an expression tree.
func Parse(input string) (ast.Expr, error) {
	toks, err := scan(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, &ParseError{Message: "unexpected trailing input " + p.peek().val, Pos: p.peek().pos}
	}
	return expr, nil
}

type parser struct {
	toks []tok
	pos  int
}

func (p *parser) peek() tok { return p.toks[p.pos] }

func (p *parser) next() tok {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// peekKeyword reports whether the next token is the given bare identifier.
func (p *parser) peekKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.val == kw
}

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Expr, error) {
	if p.peekKeyword("not") {
		p.next()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "not", Expr: expr}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokIdent && comparisonOps[t.val] {
		op := p.next().val
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Op: op, Left: left, Right: right}, nil
	}
	if p.peekKeyword("in") {
		p.next()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Op: "in", Left: left, Right: list}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("add") || p.peekKeyword("sub") {
		op := p.next().val
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("mul") || p.peekKeyword("div") || p.peekKeyword("mod") {
		op := p.next().val
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseList() (ast.Expr, error) {
	if p.peek().kind != tokLParen {
		return nil, &ParseError{Message: "expected '(' after in", Pos: p.peek().pos}
	}
	p.next()
	list := &ast.ListExpr{}
	for {
		item, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		t := p.next()
		if t.kind == tokComma {
			continue
		}
		if t.kind == tokRParen {
			return list, nil
		}
		return nil, &ParseError{Message: "expected ',' or ')' in value list", Pos: t.pos}
	}
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &ParseError{Message: "expected ')'", Pos: closing.pos}
		}
		return expr, nil
	case tokString:
		p.next()
		return &ast.LiteralExpr{Kind: ast.LiteralString, Value: t.val}, nil
	case tokNumber:
		p.next()
		return &ast.LiteralExpr{Kind: ast.LiteralNumber, Value: t.val}, nil
	case tokBool:
		p.next()
		return &ast.LiteralExpr{Kind: ast.LiteralBool, Value: t.val}, nil
	case tokNull:
		p.next()
		return &ast.LiteralExpr{Kind: ast.LiteralNull, Value: t.val}, nil
	case tokDateTime:
		p.next()
		return &ast.LiteralExpr{Kind: ast.LiteralDateTime, Value: t.val}, nil
	case tokGeometry:
		p.next()
		return &ast.LiteralExpr{Kind: ast.LiteralGeometry, Value: t.val}, nil
	case tokIdent:
		return p.parseIdentOrCall()
	default:
		return nil, &ParseError{Message: "unexpected token " + t.val, Pos: t.pos}
	}
}

// parseIdentOrCall parses a function application or a member path.
func (p *parser) parseIdentOrCall() (ast.Expr, error) {
	t := p.next()
	name := t.val

	if p.peek().kind == tokLParen {
		arity, ok := supportedFunctions[name]
		if !ok {
			return nil, &UnsupportedFunctionError{Name: name}
		}
		p.next()
		call := &ast.CallExpr{Func: name}
		if p.peek().kind == tokRParen {
			p.next()
		} else {
			for {
				arg, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				sep := p.next()
				if sep.kind == tokComma {
					continue
				}
				if sep.kind == tokRParen {
					break
				}
				return nil, &ParseError{Message: "expected ',' or ')' in arguments of " + name, Pos: sep.pos}
			}
		}
		if err := checkArity(name, arity, len(call.Args)); err != nil {
			return nil, err
		}
		return call, nil
	}

	path := []string{name}
	for p.peek().kind == tokSlash {
		p.next()
		seg := p.next()
		if seg.kind != tokIdent {
			return nil, &ParseError{Message: "expected identifier after '/'", Pos: seg.pos}
		}
		path = append(path, seg.val)
	}
	return &ast.MemberExpr{Path: path}, nil
}

func checkArity(name string, arity, got int) error {
	if arity >= 0 {
		if got != arity {
			return &ParseError{Message: name + " expects a fixed number of arguments"}
		}
		return nil
	}
	// substring allows an optional third argument; concat two or more
	least := -arity
	if got < least || (name == "substring" && got > 3) {
		return &ParseError{Message: name + " called with wrong number of arguments"}
	}
	return nil
}
