// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/istsos/sta-go/internal/model"
	"github.com/istsos/sta-go/internal/query/ast"
)

// segmentRe matches `Name` or `Name(123)`.
var segmentRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\((\d+)\))?$`)

// ParsePath resolves an STA resource path (already stripped of the service
// prefix) into a chain of entity segments, a terminal property, and the
// $ref/$value flags.
//
//	/Things(1)/Datastreams                -> Thing(1) . Datastreams
//	/Datastreams(4)/Observations/$ref     -> ... Ref=true
//	/Things(1)/name/$value                -> Property="name", Value=true
func ParsePath(path string) (*ast.ResourcePath, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, &PathError{Segment: path, Reason: "empty resource path"}
	}
	parts := strings.Split(trimmed, "/")

	rp := &ast.ResourcePath{}
	for i := 0; i < len(parts); i++ {
		part := parts[i]

		switch part {
		case "$ref":
			if i != len(parts)-1 || len(rp.Segments) == 0 || rp.Property != "" {
				return nil, &PathError{Segment: part, Reason: "$ref must terminate an entity path"}
			}
			rp.Ref = true
			continue
		case "$value":
			if i != len(parts)-1 || rp.Property == "" {
				return nil, &PathError{Segment: part, Reason: "$value must follow a property"}
			}
			rp.Value = true
			continue
		}

		if rp.Property != "" {
			return nil, &PathError{Segment: part, Reason: "nothing may follow a property except $value"}
		}

		m := segmentRe.FindStringSubmatch(part)
		if m == nil {
			return nil, &PathError{Segment: part, Reason: "malformed segment"}
		}
		name := m[1]

		if len(rp.Segments) == 0 {
			entity, ok := model.Lookup(name)
			if !ok {
				return nil, &PathError{Segment: name, Reason: "unknown entity"}
			}
			seg := ast.PathSegment{Entity: entity.Name}
			if m[2] != "" {
				id, _ := strconv.ParseInt(m[2], 10, 64)
				seg.ID = &id
			}
			rp.Segments = append(rp.Segments, seg)
			continue
		}

		prev := rp.Segments[len(rp.Segments)-1].Entity
		if rel, ok := model.LookupRelationship(prev, name); ok {
			seg := ast.PathSegment{Entity: rel.Target, Nav: name}
			if m[2] != "" {
				id, _ := strconv.ParseInt(m[2], 10, 64)
				seg.ID = &id
			}
			rp.Segments = append(rp.Segments, seg)
			continue
		}

		// Not a navigation: must be a terminal property of the previous entity.
		if m[2] != "" {
			return nil, &PathError{Segment: part, Reason: "unknown navigation property"}
		}
		prevEntity := model.MustLookup(prev)
		if !propertyOf(prevEntity, name) {
			return nil, &PathError{Segment: name, Reason: "unknown property or navigation"}
		}
		rp.Property = name
	}

	return rp, nil
}

// propertyOf reports whether name is a data property of the entity.
func propertyOf(entity *model.Entity, name string) bool {
	if name == "id" {
		return true
	}
	for _, p := range entity.DefaultSelect {
		if p == name {
			return true
		}
	}
	return false
}
