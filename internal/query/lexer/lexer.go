// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package lexer tokenizes STA query strings.
//
// The input is the already URL-decoded query portion of an STA request, e.g.
//
//	$filter=result eq 3&$expand=Datastream($select=name)&$top=10
//
// Tokenization is greedy: the ordered pattern table is applied at the current
// position and the first match wins. The first position where no pattern
// matches aborts with a TokenizeError.
//
// $filter bodies are captured as a single FilterExpression token (balanced
// parentheses, terminated by a top-level '&' or ';'); the filter package owns
// the grammar inside them.
package lexer

import (
	"fmt"
	"regexp"
)

// Kind identifies a token class.
type Kind int

const (
	Count Kind = iota
	Top
	Skip
	Select
	Filter
	Expand
	OrderBy
	AsOf
	FromTo
	ResultFormat
	ResultFormatValue
	SubQuerySeparator
	ValueSeparator
	OptionsSeparator
	Order
	Bool
	DateTime
	Identifier
	Integer
	String
	LeftParen
	RightParen
	Whitespace
	SegmentSeparator

	// FilterExpression is the raw body following a Filter token. It is not a
	// surface token class; the filter package parses its contents.
	FilterExpression
)

var kindNames = map[Kind]string{
	Count:             "COUNT",
	Top:               "TOP",
	Skip:              "SKIP",
	Select:            "SELECT",
	Filter:            "FILTER",
	Expand:            "EXPAND",
	OrderBy:           "ORDERBY",
	AsOf:              "ASOF",
	FromTo:            "FROMTO",
	ResultFormat:      "RESULT_FORMAT",
	ResultFormatValue: "RESULT_FORMAT_VALUE",
	SubQuerySeparator: "SUBQUERY_SEPARATOR",
	ValueSeparator:    "VALUE_SEPARATOR",
	OptionsSeparator:  "OPTIONS_SEPARATOR",
	Order:             "ORDER",
	Bool:              "BOOL",
	DateTime:          "DATETIME",
	Identifier:        "IDENTIFIER",
	Integer:           "INTEGER",
	String:            "STRING",
	LeftParen:         "LEFT_PAREN",
	RightParen:        "RIGHT_PAREN",
	Whitespace:        "WHITESPACE",
	SegmentSeparator:  "SEGMENT_SEPARATOR",
	FilterExpression:  "FILTER_EXPRESSION",
}

// String returns the token class name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one lexeme with its position in the input.
type Token struct {
	Kind  Kind
	Value string
	Pos   int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Kind, t.Value)
}

// TokenizeError reports the first position where no pattern matched.
type TokenizeError struct {
	Input string
	Pos   int
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("cannot tokenize %q at position %d", e.Input, e.Pos)
}

// pattern pairs a token kind with its anchored regular expression. Order is
// significant: earlier patterns win.
type pattern struct {
	kind Kind
	re   *regexp.Regexp
}

var patterns = []pattern{
	{Count, regexp.MustCompile(`^\$count=`)},
	{Top, regexp.MustCompile(`^\$top=`)},
	{Skip, regexp.MustCompile(`^\$skip=`)},
	{Select, regexp.MustCompile(`^\$select=`)},
	{Filter, regexp.MustCompile(`^\$filter=`)},
	{Expand, regexp.MustCompile(`^\$expand=`)},
	{OrderBy, regexp.MustCompile(`^\$orderby=`)},
	{AsOf, regexp.MustCompile(`^\$as_of=`)},
	{FromTo, regexp.MustCompile(`^\$from_to=`)},
	{ResultFormat, regexp.MustCompile(`^\$resultFormat=`)},
	{ResultFormatValue, regexp.MustCompile(`^dataArray\b`)},
	{SubQuerySeparator, regexp.MustCompile(`^;`)},
	{ValueSeparator, regexp.MustCompile(`^,`)},
	{OptionsSeparator, regexp.MustCompile(`^&`)},
	{Order, regexp.MustCompile(`^(asc|desc)\b`)},
	{Bool, regexp.MustCompile(`^(true|false)\b`)},
	{DateTime, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`)},
	{Identifier, regexp.MustCompile(`^[A-Za-z_@][A-Za-z0-9_.]*`)},
	{Integer, regexp.MustCompile(`^-?\d+`)},
	{String, regexp.MustCompile(`^'(?:[^']|'')*'`)},
	{LeftParen, regexp.MustCompile(`^\(`)},
	{RightParen, regexp.MustCompile(`^\)`)},
	{Whitespace, regexp.MustCompile(`^\s+`)},
	{SegmentSeparator, regexp.MustCompile(`^/`)},
}

// Tokenize splits the query string into tokens.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	pos := 0
	for pos < len(input) {
		tok, n, ok := match(input, pos)
		if !ok {
			return nil, &TokenizeError{Input: input, Pos: pos}
		}
		tokens = append(tokens, tok)
		pos += n

		// A $filter= option is followed by a raw expression body that the
		// surface token table cannot describe (floats, nested parens).
		if tok.Kind == Filter {
			body, n := scanFilterBody(input[pos:])
			tokens = append(tokens, Token{Kind: FilterExpression, Value: body, Pos: pos})
			pos += n
		}
	}
	return tokens, nil
}

// match applies the pattern table at pos and returns the winning token.
func match(input string, pos int) (Token, int, bool) {
	rest := input[pos:]
	for _, p := range patterns {
		if loc := p.re.FindStringIndex(rest); loc != nil {
			return Token{Kind: p.kind, Value: rest[:loc[1]], Pos: pos}, loc[1], true
		}
	}
	return Token{}, 0, false
}

// scanFilterBody consumes a filter expression: everything up to a top-level
// '&' or ';', or an unbalanced ')', honoring single-quoted strings.
func scanFilterBody(rest string) (string, int) {
	depth := 0
	inString := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if inString {
			if c == '\'' {
				// doubled quote is an escaped quote
				if i+1 < len(rest) && rest[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return rest[:i], i
			}
			depth--
		case '&', ';':
			if depth == 0 {
				return rest[:i], i
			}
		}
	}
	return rest, len(rest)
}
