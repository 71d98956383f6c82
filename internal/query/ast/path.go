// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package ast

// PathSegment is one `<entity>(id)` element of a resource path. ID is nil for
// collection segments.
type PathSegment struct {
	// Entity is the canonical (singular) entity name.
	Entity string

	// Nav preserves the navigation spelling used in the URL, which is what
	// self and navigation links must echo ("Locations", "Thing", ...).
	// Empty for the root segment.
	Nav string

	// ID addresses a single resource within the segment's collection.
	ID *int64
}

// ResourcePath is a parsed STA URL path: a chain of entity segments, an
// optional terminal property, and the $ref/$value flags.
type ResourcePath struct {
	Segments []PathSegment

	// Property is the terminal property name, empty when the path addresses
	// an entity or collection.
	Property string

	// Ref is true for `.../$ref` paths: only @iot.selfLink objects are
	// returned.
	Ref bool

	// Value is true for `.../<property>/$value` paths: the raw property
	// value is returned.
	Value bool
}

// Last returns the final entity segment.
func (p *ResourcePath) Last() PathSegment {
	return p.Segments[len(p.Segments)-1]
}

// HasID reports whether the final segment addresses a single resource by id.
// A segment without an id can still be a single resource when it traverses a
// to-one navigation; the caller resolves that against the entity model.
func (p *ResourcePath) HasID() bool {
	return p.Last().ID != nil
}
