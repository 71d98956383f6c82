// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package parser builds the typed query tree (ast.QueryNode) from a tokenized
// STA query string, and resolves STA resource paths against the entity model.
//
// The parser enforces two structural rules the grammar alone cannot express:
// $resultFormat may only appear at top level, and $as_of and $from_to are
// mutually exclusive.
package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/istsos/sta-go/internal/query/ast"
	"github.com/istsos/sta-go/internal/query/filter"
	"github.com/istsos/sta-go/internal/query/lexer"
)

// Parse parses an URL-decoded STA query string into a QueryNode.
func Parse(query string) (*ast.QueryNode, error) {
	if query == "" {
		return &ast.QueryNode{}, nil
	}
	tokens, err := lexer.Tokenize(query)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseQuery(false)
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errHere("trailing input after query options")
	}
	return node, nil
}

type parser struct {
	tokens []lexer.Token
	pos    int
}

func (p *parser) atEOF() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() (lexer.Token, bool) {
	if p.atEOF() {
		return lexer.Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (lexer.Token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// expect consumes the next token and demands the given kind.
func (p *parser) expect(kind lexer.Kind) (lexer.Token, error) {
	t, ok := p.next()
	if !ok {
		return lexer.Token{}, &ParseError{EOF: true, Hint: "expected " + kind.String()}
	}
	if t.Kind != kind {
		return lexer.Token{}, &ParseError{Token: t, Hint: "expected " + kind.String()}
	}
	return t, nil
}

func (p *parser) errHere(hint string) error {
	if t, ok := p.peek(); ok {
		return &ParseError{Token: t, Hint: hint}
	}
	return &ParseError{EOF: true, Hint: hint}
}

// skipWhitespace discards whitespace tokens.
func (p *parser) skipWhitespace() {
	for {
		t, ok := p.peek()
		if !ok || t.Kind != lexer.Whitespace {
			return
		}
		p.pos++
	}
}

// parseQuery parses a sequence of options. In a subquery the separator is ';'
// and the sequence ends at the closing ')'; at top level the separator is '&'.
func (p *parser) parseQuery(subquery bool) (*ast.QueryNode, error) {
	node := &ast.QueryNode{IsSubquery: subquery}
	separator := lexer.OptionsSeparator
	if subquery {
		separator = lexer.SubQuerySeparator
	}

	for {
		if err := p.parseOption(node); err != nil {
			return nil, err
		}
		t, ok := p.peek()
		if !ok {
			break
		}
		if subquery && t.Kind == lexer.RightParen {
			break
		}
		if t.Kind != separator {
			return nil, p.errHere("expected option separator")
		}
		p.pos++
	}

	if node.AsOf != nil && node.FromTo != nil {
		return nil, p.errHere("$as_of and $from_to are mutually exclusive")
	}
	return node, nil
}

// parseOption dispatches on the option keyword token.
func (p *parser) parseOption(node *ast.QueryNode) error {
	t, ok := p.next()
	if !ok {
		return &ParseError{EOF: true, Hint: "expected query option"}
	}
	switch t.Kind {
	case lexer.Count:
		b, err := p.expect(lexer.Bool)
		if err != nil {
			return err
		}
		node.Count = &ast.CountNode{Value: b.Value == "true"}
	case lexer.Top:
		v, err := p.parseNonNegativeInt("$top")
		if err != nil {
			return err
		}
		node.Top = &ast.TopNode{Value: v}
	case lexer.Skip:
		v, err := p.parseNonNegativeInt("$skip")
		if err != nil {
			return err
		}
		node.Skip = &ast.SkipNode{Value: v}
	case lexer.Select:
		sel, err := p.parseSelect()
		if err != nil {
			return err
		}
		node.Select = sel
	case lexer.OrderBy:
		ob, err := p.parseOrderBy()
		if err != nil {
			return err
		}
		node.OrderBy = ob
	case lexer.Filter:
		body, err := p.expect(lexer.FilterExpression)
		if err != nil {
			return err
		}
		expr, err := filter.Parse(body.Value)
		if err != nil {
			return err
		}
		node.Filter = &ast.FilterNode{Expr: expr, Raw: body.Value}
	case lexer.Expand:
		exp, err := p.parseExpand()
		if err != nil {
			return err
		}
		node.Expand = exp
	case lexer.AsOf:
		ts, err := p.parseDateTime()
		if err != nil {
			return err
		}
		node.AsOf = &ast.AsOfNode{Value: ts}
	case lexer.FromTo:
		from, err := p.parseDateTime()
		if err != nil {
			return err
		}
		if _, err := p.expect(lexer.ValueSeparator); err != nil {
			return err
		}
		to, err := p.parseDateTime()
		if err != nil {
			return err
		}
		node.FromTo = &ast.FromToNode{From: from, To: to}
	case lexer.ResultFormat:
		if node.IsSubquery {
			return &ParseError{Token: t, Hint: "$resultFormat is only allowed at top level"}
		}
		v, err := p.expect(lexer.ResultFormatValue)
		if err != nil {
			return err
		}
		node.ResultFormat = &ast.ResultFormatNode{Value: v.Value}
	default:
		return &ParseError{Token: t, Hint: "expected query option"}
	}
	return nil
}

func (p *parser) parseNonNegativeInt(option string) (int, error) {
	t, err := p.expect(lexer.Integer)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(t.Value)
	if err != nil || v < 0 {
		return 0, &ParseError{Token: t, Hint: option + " must be a non-negative integer"}
	}
	return v, nil
}

func (p *parser) parseDateTime() (time.Time, error) {
	t, err := p.expect(lexer.DateTime)
	if err != nil {
		return time.Time{}, err
	}
	value := t.Value
	if !strings.ContainsAny(value, "Z+") && !hasOffsetSuffix(value) {
		// timezone-less timestamps are taken as UTC
		value += "Z"
	}
	ts, perr := time.Parse(time.RFC3339, value)
	if perr != nil {
		return time.Time{}, &ParseError{Token: t, Hint: "invalid ISO 8601 datetime"}
	}
	return ts.UTC(), nil
}

// hasOffsetSuffix detects a trailing +hh:mm / -hh:mm offset.
func hasOffsetSuffix(v string) bool {
	if len(v) < 6 {
		return false
	}
	c := v[len(v)-6]
	return (c == '+' || c == '-') && v[len(v)-3] == ':'
}

func (p *parser) parseSelect() (*ast.SelectNode, error) {
	sel := &ast.SelectNode{}
	for {
		t, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, t.Value)
		n, ok := p.peek()
		if !ok || n.Kind != lexer.ValueSeparator {
			return sel, nil
		}
		p.pos++
	}
}

func (p *parser) parseOrderBy() (*ast.OrderByNode, error) {
	ob := &ast.OrderByNode{}
	for {
		t, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		item := ast.OrderByItem{Property: t.Value}
		p.skipWhitespace()
		if n, ok := p.peek(); ok && n.Kind == lexer.Order {
			item.Desc = n.Value == "desc"
			p.pos++
		}
		ob.Items = append(ob.Items, item)
		p.skipWhitespace()
		n, ok := p.peek()
		if !ok || n.Kind != lexer.ValueSeparator {
			return ob, nil
		}
		p.pos++
		p.skipWhitespace()
	}
}

func (p *parser) parseExpand() (*ast.ExpandNode, error) {
	exp := &ast.ExpandNode{}
	for {
		t, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		item := &ast.ExpandItem{Name: t.Value}
		if n, ok := p.peek(); ok && n.Kind == lexer.LeftParen {
			p.pos++
			sub, err := p.parseQuery(true)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RightParen); err != nil {
				return nil, err
			}
			item.Subquery = sub
		}
		exp.Items = append(exp.Items, item)
		n, ok := p.peek()
		if !ok || n.Kind != lexer.ValueSeparator {
			return exp, nil
		}
		p.pos++
	}
}
