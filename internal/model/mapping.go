// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package model

// selectMapping maps JSON-surface property names to storage column names for
// the properties whose spelling differs. Identity mappings (name, description,
// properties, feature, location, metadata, definition, time, result, author,
// message, date) are implicit.
var selectMapping = map[string]string{
	"encodingType":       "encoding_type",
	"unitOfMeasurement":  "unit_of_measurement",
	"observationType":    "observation_type",
	"observedArea":       "observed_area",
	"phenomenonTime":     "phenomenon_time",
	"resultTime":         "result_time",
	"resultQuality":      "result_quality",
	"validTime":          "valid_time",
	"actionType":         "action_type",
	"systemTimeValidity": "system_time_validity",
}

// reverseSelectMapping maps storage column names back to JSON-surface names.
var reverseSelectMapping = func() map[string]string {
	m := make(map[string]string, len(selectMapping))
	for jsonName, column := range selectMapping {
		m[column] = jsonName
	}
	return m
}()

// Column resolves a JSON-surface property name to its storage column.
func Column(property string) string {
	if property == "id" || property == "@iot.id" {
		return "id"
	}
	if column, ok := selectMapping[property]; ok {
		return column
	}
	return property
}

// Property resolves a storage column name back to its JSON-surface name.
func Property(column string) string {
	if property, ok := reverseSelectMapping[column]; ok {
		return property
	}
	return column
}

// geometryColumns is the set of entity properties stored as PostGIS geometry.
// The compiler wraps these in ST_AsGeoJSON on projection.
var geometryColumns = map[string]map[string]bool{
	Location:          {"location": true},
	FeatureOfInterest: {"feature": true},
	Datastream:        {"observedArea": true},
}

// IsGeometry reports whether the property of the entity is geometry-valued.
func IsGeometry(entity, property string) bool {
	return geometryColumns[entity][property]
}

// rangeColumns is the set of entity properties stored as tstzrange. The
// compiler serializes these as "lower/upper" ISO-8601 text; instant-width
// Observation phenomenonTime collapses to the single instant.
var rangeColumns = map[string]map[string]bool{
	Datastream:  {"phenomenonTime": true, "resultTime": true},
	Observation: {"phenomenonTime": true, "validTime": true},
}

// IsRange reports whether the property of the entity is range-valued.
func IsRange(entity, property string) bool {
	if property == "systemTimeValidity" {
		return true
	}
	return rangeColumns[entity][property]
}

// jsonColumns is the set of entity properties stored as jsonb and returned
// verbatim.
var jsonColumns = map[string]map[string]bool{
	Thing:            {"properties": true},
	Location:         {"properties": true},
	Sensor:           {"properties": true, "metadata": true},
	ObservedProperty: {"properties": true},
	Datastream:       {"properties": true, "unitOfMeasurement": true},
	FeatureOfInterest: {
		"properties": true,
	},
	Observation: {"parameters": true, "resultQuality": true},
}

// IsJSON reports whether the property of the entity is stored as jsonb.
func IsJSON(entity, property string) bool {
	return jsonColumns[entity][property]
}

// HasProperty reports whether the entity carries the JSON-surface property,
// either in its default projection or as a relationship-independent column.
func HasProperty(entity *Entity, property string) bool {
	if property == "id" {
		return true
	}
	for _, p := range entity.DefaultSelect {
		if p == property {
			return true
		}
	}
	// Observation splits "result" into typed columns but keeps the surface name.
	return false
}
