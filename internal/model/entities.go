// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package model

import "fmt"

// Canonical entity names. These are the singular STA names and are used as
// keys everywhere in the engine.
const (
	Thing              = "Thing"
	Location           = "Location"
	HistoricalLocation = "HistoricalLocation"
	Sensor             = "Sensor"
	ObservedProperty   = "ObservedProperty"
	Datastream         = "Datastream"
	FeatureOfInterest  = "FeatureOfInterest"
	Observation        = "Observation"
	Commit             = "Commit"
)

// Entity describes one concrete SensorThings entity type.
type Entity struct {
	// Name is the canonical singular STA name.
	Name string

	// Plural is the STA collection name used in URLs.
	Plural string

	// Table is the storage table name. TravelTime shadows append the
	// TravelTimeSuffix.
	Table string

	// DefaultSelect lists the JSON-surface property names projected when
	// $select is absent, in response order. "id" is always first.
	DefaultSelect []string

	// Required lists the JSON-surface properties that must be present in a
	// POST payload for the entity to be valid.
	Required []string
}

// TravelTimeSuffix is appended to a table name to address its system-time
// versioned shadow.
const TravelTimeSuffix = "_traveltime"

// TravelTimeTable returns the shadow table for the entity.
func (e *Entity) TravelTimeTable() string { return e.Table + TravelTimeSuffix }

// entities is the registry of all concrete entity types.
var entities = map[string]*Entity{
	Thing: {
		Name:          Thing,
		Plural:        "Things",
		Table:         "thing",
		DefaultSelect: []string{"id", "name", "description", "properties"},
		Required:      []string{"name", "description"},
	},
	Location: {
		Name:          Location,
		Plural:        "Locations",
		Table:         "location",
		DefaultSelect: []string{"id", "name", "description", "encodingType", "location", "properties"},
		Required:      []string{"name", "description", "encodingType", "location"},
	},
	HistoricalLocation: {
		Name:          HistoricalLocation,
		Plural:        "HistoricalLocations",
		Table:         "historicallocation",
		DefaultSelect: []string{"id", "time"},
		Required:      []string{"time"},
	},
	Sensor: {
		Name:          Sensor,
		Plural:        "Sensors",
		Table:         "sensor",
		DefaultSelect: []string{"id", "name", "description", "encodingType", "metadata", "properties"},
		Required:      []string{"name", "description", "encodingType", "metadata"},
	},
	ObservedProperty: {
		Name:          ObservedProperty,
		Plural:        "ObservedProperties",
		Table:         "observedproperty",
		DefaultSelect: []string{"id", "name", "definition", "description", "properties"},
		Required:      []string{"name", "definition", "description"},
	},
	Datastream: {
		Name:   Datastream,
		Plural: "Datastreams",
		Table:  "datastream",
		DefaultSelect: []string{
			"id", "name", "description", "unitOfMeasurement", "observationType",
			"observedArea", "phenomenonTime", "resultTime", "properties",
		},
		Required: []string{"name", "description", "unitOfMeasurement", "observationType"},
	},
	FeatureOfInterest: {
		Name:          FeatureOfInterest,
		Plural:        "FeaturesOfInterest",
		Table:         "featuresofinterest",
		DefaultSelect: []string{"id", "name", "description", "encodingType", "feature", "properties"},
		Required:      []string{"name", "description", "encodingType", "feature"},
	},
	Observation: {
		Name:   Observation,
		Plural: "Observations",
		Table:  "observation",
		DefaultSelect: []string{
			"id", "phenomenonTime", "result", "resultTime", "resultQuality",
			"validTime", "parameters",
		},
		Required: []string{"result"},
	},
	Commit: {
		Name:          Commit,
		Plural:        "Commits",
		Table:         "commit",
		DefaultSelect: []string{"id", "author", "encodingType", "message", "date", "actionType"},
		Required:      []string{"message"},
	},
}

// nameAliases resolves both singular and plural STA names to canonical names.
var nameAliases = func() map[string]string {
	m := make(map[string]string, len(entities)*2)
	for name, e := range entities {
		m[name] = name
		m[e.Plural] = name
	}
	return m
}()

// Lookup resolves a singular or plural STA name to its entity descriptor.
func Lookup(name string) (*Entity, bool) {
	canonical, ok := nameAliases[name]
	if !ok {
		return nil, false
	}
	return entities[canonical], true
}

// MustLookup resolves a canonical entity name and panics on failure. Only for
// static wiring where the name is a package constant.
func MustLookup(name string) *Entity {
	e, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("model: unknown entity %q", name))
	}
	return e
}

// Names returns all canonical entity names in a stable, service-root order.
func Names() []string {
	return []string{
		Thing, Location, HistoricalLocation, Sensor, ObservedProperty,
		Datastream, FeatureOfInterest, Observation, Commit,
	}
}
