// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package validation

import (
	"errors"
	"strings"
	"testing"
)

type queryFixture struct {
	TopValue    int    `validate:"min=1"`
	CountMode   string `validate:"count_mode"`
	STAggregate string `validate:"st_aggregate"`
}

func validFixture() queryFixture {
	return queryFixture{TopValue: 100, CountMode: "FULL", STAggregate: "EXTENT"}
}

func TestValidateStructOK(t *testing.T) {
	t.Parallel()

	f := validFixture()
	if err := ValidateStruct(&f); err != nil {
		t.Errorf("ValidateStruct failed: %v", err)
	}
}

func TestValidateCountMode(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"FULL", "LIMIT_ESTIMATE", "ESTIMATE_LIMIT"} {
		f := validFixture()
		f.CountMode = mode
		if err := ValidateStruct(&f); err != nil {
			t.Errorf("count mode %s rejected: %v", mode, err)
		}
	}

	f := validFixture()
	f.CountMode = "full"
	err := ValidateStruct(&f)
	if err == nil {
		t.Fatal("lowercase count mode accepted")
	}
	if !strings.Contains(err.Error(), "must be one of FULL") {
		t.Errorf("error = %q", err)
	}
}

func TestValidateSTAggregate(t *testing.T) {
	t.Parallel()

	f := validFixture()
	f.STAggregate = "UNION"
	if err := ValidateStruct(&f); err == nil {
		t.Error("unknown st_aggregate accepted")
	}
}

func TestValidateStructError(t *testing.T) {
	t.Parallel()

	f := queryFixture{TopValue: 0, CountMode: "nope", STAggregate: "EXTENT"}
	err := ValidateStruct(&f)

	var se *StructError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T, want StructError", err)
	}
	if len(se.Fields) != 2 {
		t.Fatalf("fields = %+v, want 2 failures", se.Fields)
	}
	if se.Fields[0].Field != "TopValue" || se.Fields[0].Tag != "min" {
		t.Errorf("first failure = %+v", se.Fields[0])
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("messages not joined: %q", err)
	}
}

func TestValidatorSingleton(t *testing.T) {
	t.Parallel()

	if Validator() != Validator() {
		t.Error("Validator() returned different instances")
	}
}
