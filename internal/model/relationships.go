// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package model

// Cardinality is the direction of a relationship as seen from the owning
// entity.
type Cardinality int

const (
	// ManyToOne: the owning entity carries the foreign key (e.g.
	// Observation -> Datastream).
	ManyToOne Cardinality = iota

	// OneToMany: the related entity carries the foreign key back to the
	// owner (e.g. Datastream -> Observations).
	OneToMany

	// ManyToMany: the pair is joined through a link table (e.g.
	// Thing <-> Locations).
	ManyToMany
)

// Relationship describes how to traverse from one entity to a related one.
type Relationship struct {
	// Name is the navigation property name as it appears in URLs and
	// payloads ("Datastreams", "FeatureOfInterest", ...).
	Name string

	// Target is the canonical name of the related entity.
	Target string

	// Cardinality is the traversal direction.
	Cardinality Cardinality

	// FKColumn is the foreign-key column. For ManyToOne it lives on the
	// owning table; for OneToMany on the target table. Unused for ManyToMany.
	FKColumn string

	// LinkTable, LinkOwnerFK, LinkTargetFK describe the join table for
	// ManyToMany relationships.
	LinkTable    string
	LinkOwnerFK  string
	LinkTargetFK string
}

// Link table names.
const (
	ThingLocationTable              = "thing_location"
	LocationHistoricalLocationTable = "location_historicallocation"
)

// relationships maps each entity to its navigation properties.
var relationships = map[string]map[string]Relationship{
	Thing: {
		"Locations": {
			Name: "Locations", Target: Location, Cardinality: ManyToMany,
			LinkTable: ThingLocationTable, LinkOwnerFK: "thing_id", LinkTargetFK: "location_id",
		},
		"HistoricalLocations": {
			Name: "HistoricalLocations", Target: HistoricalLocation,
			Cardinality: OneToMany, FKColumn: "thing_id",
		},
		"Datastreams": {
			Name: "Datastreams", Target: Datastream,
			Cardinality: OneToMany, FKColumn: "thing_id",
		},
		"Commit": commitRelationship(),
	},
	Location: {
		"Things": {
			Name: "Things", Target: Thing, Cardinality: ManyToMany,
			LinkTable: ThingLocationTable, LinkOwnerFK: "location_id", LinkTargetFK: "thing_id",
		},
		"HistoricalLocations": {
			Name: "HistoricalLocations", Target: HistoricalLocation, Cardinality: ManyToMany,
			LinkTable: LocationHistoricalLocationTable, LinkOwnerFK: "location_id", LinkTargetFK: "historicallocation_id",
		},
		"Commit": commitRelationship(),
	},
	HistoricalLocation: {
		"Thing": {
			Name: "Thing", Target: Thing, Cardinality: ManyToOne, FKColumn: "thing_id",
		},
		"Locations": {
			Name: "Locations", Target: Location, Cardinality: ManyToMany,
			LinkTable: LocationHistoricalLocationTable, LinkOwnerFK: "historicallocation_id", LinkTargetFK: "location_id",
		},
		"Commit": commitRelationship(),
	},
	Sensor: {
		"Datastreams": {
			Name: "Datastreams", Target: Datastream,
			Cardinality: OneToMany, FKColumn: "sensor_id",
		},
		"Commit": commitRelationship(),
	},
	ObservedProperty: {
		"Datastreams": {
			Name: "Datastreams", Target: Datastream,
			Cardinality: OneToMany, FKColumn: "observedproperty_id",
		},
		"Commit": commitRelationship(),
	},
	Datastream: {
		"Thing": {
			Name: "Thing", Target: Thing, Cardinality: ManyToOne, FKColumn: "thing_id",
		},
		"Sensor": {
			Name: "Sensor", Target: Sensor, Cardinality: ManyToOne, FKColumn: "sensor_id",
		},
		"ObservedProperty": {
			Name: "ObservedProperty", Target: ObservedProperty, Cardinality: ManyToOne, FKColumn: "observedproperty_id",
		},
		"Observations": {
			Name: "Observations", Target: Observation,
			Cardinality: OneToMany, FKColumn: "datastream_id",
		},
		"Commit": commitRelationship(),
	},
	FeatureOfInterest: {
		"Observations": {
			Name: "Observations", Target: Observation,
			Cardinality: OneToMany, FKColumn: "featuresofinterest_id",
		},
		"Commit": commitRelationship(),
	},
	Observation: {
		"Datastream": {
			Name: "Datastream", Target: Datastream, Cardinality: ManyToOne, FKColumn: "datastream_id",
		},
		"FeatureOfInterest": {
			Name: "FeatureOfInterest", Target: FeatureOfInterest, Cardinality: ManyToOne, FKColumn: "featuresofinterest_id",
		},
		"Commit": commitRelationship(),
	},
	Commit: {},
}

// commitRelationship is shared by every versioned entity: the provenance
// commit is a plain foreign reference and never has a TravelTime shadow.
func commitRelationship() Relationship {
	return Relationship{
		Name: "Commit", Target: Commit, Cardinality: ManyToOne, FKColumn: "commit_id",
	}
}

// Relationships returns the navigation properties of the entity in no
// particular order.
func Relationships(entity string) map[string]Relationship {
	return relationships[entity]
}

// NavigationNames returns the navigation property names of the entity in a
// stable order (the order nav links are emitted in responses).
func NavigationNames(entity string) []string {
	order := map[string][]string{
		Thing:              {"Locations", "HistoricalLocations", "Datastreams", "Commit"},
		Location:           {"Things", "HistoricalLocations", "Commit"},
		HistoricalLocation: {"Thing", "Locations", "Commit"},
		Sensor:             {"Datastreams", "Commit"},
		ObservedProperty:   {"Datastreams", "Commit"},
		Datastream:         {"Thing", "Sensor", "ObservedProperty", "Observations", "Commit"},
		FeatureOfInterest:  {"Observations", "Commit"},
		Observation:        {"Datastream", "FeatureOfInterest", "Commit"},
		Commit:             {},
	}
	return order[entity]
}

// Relationship resolves a navigation property of the entity. The name may be
// singular or plural exactly as registered; unknown names return false.
func LookupRelationship(entity, nav string) (Relationship, bool) {
	rel, ok := relationships[entity][nav]
	return rel, ok
}
