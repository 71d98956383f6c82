// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

// Package validation provides struct validation using go-playground/validator
// v10 behind a thread-safe singleton, with the custom tags the configuration
// depends on (count_mode, st_aggregate).
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed validation with structured field information.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// StructError collects the failures of one ValidateStruct call.
type StructError struct {
	Fields []FieldError
}

func (e *StructError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Message)
	}
	return strings.Join(messages, "; ")
}

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// custom enum tags used by the configuration
		mustRegister("count_mode", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "FULL", "LIMIT_ESTIMATE", "ESTIMATE_LIMIT":
				return true
			}
			return false
		})
		mustRegister("st_aggregate", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "CONVEX_HULL", "EXTENT":
				return true
			}
			return false
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// ValidateStruct validates s and returns a StructError describing every
// failed field.
func ValidateStruct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	se := &StructError{Fields: make([]FieldError, 0, len(fieldErrors))}
	for _, fe := range fieldErrors {
		se.Fields = append(se.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fieldMessage(fe),
		})
	}
	return se
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "count_mode":
		return fmt.Sprintf("%s must be one of FULL, LIMIT_ESTIMATE, ESTIMATE_LIMIT", fe.Field())
	case "st_aggregate":
		return fmt.Sprintf("%s must be one of CONVEX_HULL, EXTENT", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
