// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package parser

import (
	"fmt"

	"github.com/istsos/sta-go/internal/query/lexer"
)

// ParseError reports an unexpected token or premature end of input.
type ParseError struct {
	Token lexer.Token
	EOF   bool
	Hint  string
}

func (e *ParseError) Error() string {
	if e.EOF {
		if e.Hint != "" {
			return fmt.Sprintf("unexpected end of query: %s", e.Hint)
		}
		return "unexpected end of query"
	}
	if e.Hint != "" {
		return fmt.Sprintf("unexpected token %s at position %d: %s", e.Token, e.Token.Pos, e.Hint)
	}
	return fmt.Sprintf("unexpected token %s at position %d", e.Token, e.Token.Pos)
}

// PathError reports an invalid resource path.
type PathError struct {
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path segment %q: %s", e.Segment, e.Reason)
}
