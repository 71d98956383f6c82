// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/database"
	"github.com/istsos/sta-go/internal/query/ast"
	"github.com/istsos/sta-go/internal/query/compiler"
	"github.com/istsos/sta-go/internal/query/filter"
	"github.com/istsos/sta-go/internal/query/lexer"
	"github.com/istsos/sta-go/internal/query/parser"
	"github.com/istsos/sta-go/internal/query/temporal"
)

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{
			Hostname: "http://localhost:8018",
			Subpath:  "/istsos4",
			Version:  "/v1.1",
		},
		Query: config.QueryConfig{
			TopValue:               100,
			PartitionChunk:         1000,
			CountMode:              config.CountModeFull,
			CountEstimateThreshold: 10000,
			EPSG:                   4326,
		},
	}
}

// testHandler wires a Handler without a database; only the handlers that fail
// before touching storage can be exercised through it.
func testHandler(cfg *config.Config) *Handler {
	return &Handler{
		cfg: cfg,
		compiler: compiler.New(compiler.Settings{
			RootURL:                cfg.Service.RootURL(),
			TopValue:               cfg.Query.TopValue,
			EPSG:                   cfg.Query.EPSG,
			CountMode:              cfg.Query.CountMode,
			CountEstimateThreshold: cfg.Query.CountEstimateThreshold,
			Versioning:             cfg.Versioning.Enabled,
		}),
	}
}

func TestServiceRoot(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	w := httptest.NewRecorder()
	h.ServiceRoot(w, httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var doc struct {
		Value []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"value"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(doc.Value) != 9 {
		t.Fatalf("entity sets = %d, want 9", len(doc.Value))
	}
	if doc.Value[0].Name != "Things" || doc.Value[0].URL != "http://localhost:8018/istsos4/v1.1/Things" {
		t.Errorf("first set = %+v", doc.Value[0])
	}
}

func TestRespondErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", &database.NotFoundError{Entity: "Thing", ID: 9}, http.StatusNotFound},
		{"path error", &parser.PathError{Segment: "Gadgets", Reason: "unknown"}, http.StatusNotFound},
		{"conflict", &database.ConflictError{Detail: "duplicate"}, http.StatusConflict},
		{"related not found", &database.RelatedNotFoundError{Entity: "Sensor", ID: 3}, http.StatusBadRequest},
		{"payload", &database.PayloadError{Detail: "bad body"}, http.StatusBadRequest},
		{"parse", &parser.ParseError{EOF: true}, http.StatusBadRequest},
		{"tokenize", &lexer.TokenizeError{Input: "$top=x", Pos: 5}, http.StatusBadRequest},
		{"filter", &filter.ParseError{Message: "bad filter"}, http.StatusBadRequest},
		{"unsupported function", &filter.UnsupportedFunctionError{Name: "matchesPattern"}, http.StatusBadRequest},
		{"invalid field", &compiler.InvalidFieldError{Entity: "Thing", Field: "wingspan"}, http.StatusBadRequest},
		{"result format", &compiler.ResultFormatError{Entity: "Thing"}, http.StatusBadRequest},
		{"path compile", &compiler.PathCompileError{Reason: "nope"}, http.StatusBadRequest},
		{"expand", &temporal.ExpandError{Nav: "Datastreams"}, http.StatusBadRequest},
		{"as_of in future", temporal.ErrAsOfInFuture, http.StatusBadRequest},
		{"from_to inverted", temporal.ErrFromToInverted, http.StatusBadRequest},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, http.StatusUnauthorized},
		{"connection lost", &pgconn.PgError{Code: "08006"}, http.StatusServiceUnavailable},
		{"other database rejection", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax"}, http.StatusBadRequest},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			respondError(w, httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/Things", nil), tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Code != tt.status || body.Type != "error" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestResourcePath(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	r := httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/Things(1)/Datastreams", nil)
	if got := h.resourcePath(r); got != "/Things(1)/Datastreams" {
		t.Errorf("resourcePath = %q", got)
	}
}

func TestRawQueryDecoding(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/Things?%24top=5&%24filter=name%20eq%20%27x%27", nil)
	if got := rawQuery(r); got != "$top=5&$filter=name eq 'x'" {
		t.Errorf("rawQuery = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/Things?$top=5", nil)
	if got := rawQuery(r); got != "$top=5" {
		t.Errorf("bare rawQuery = %q", got)
	}
}

func TestCompileRejectsSystemTimeWithoutVersioning(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	r := httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/Things?$as_of=2024-01-01T00:00:00Z", nil)
	_, err := h.compile(r)
	if err == nil {
		t.Fatal("compile succeeded without versioning")
	}
	if !strings.Contains(err.Error(), "versioning") {
		t.Errorf("error = %q", err)
	}
}

func TestCompileGet(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	r := httptest.NewRequest(http.MethodGet, "/istsos4/v1.1/Datastreams(2)/Observations?$top=5", nil)
	stmt, err := h.compile(r)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if stmt.Single || stmt.Top != 5 {
		t.Errorf("stmt = single %v top %d", stmt.Single, stmt.Top)
	}
}

func TestCreateContext(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())

	parse := func(p string) *ast.ResourcePath {
		t.Helper()
		rp, err := parser.ParsePath(p)
		if err != nil {
			t.Fatalf("ParsePath(%q): %v", p, err)
		}
		return rp
	}

	// direct collection: no context
	fk, injected, err := h.createContext(parse("/Things"))
	if err != nil || fk != nil || injected != nil {
		t.Errorf("direct create: %v %v %v", fk, injected, err)
	}

	// to-many navigation: parent foreign key
	fk, injected, err = h.createContext(parse("/Datastreams(2)/Observations"))
	if err != nil {
		t.Fatalf("contextual create failed: %v", err)
	}
	if fk["datastream_id"] != 2 || injected != nil {
		t.Errorf("fk = %v, injected = %v", fk, injected)
	}

	// link-table navigation: reverse reference injected into the payload
	fk, injected, err = h.createContext(parse("/Things(1)/Locations"))
	if err != nil {
		t.Fatalf("link-table create failed: %v", err)
	}
	if fk != nil {
		t.Errorf("fk = %v, want none", fk)
	}
	if string(injected["Things"]) != `[{"@iot.id": 1}]` {
		t.Errorf("injected = %s", injected["Things"])
	}

	// to-one navigation cannot be posted to
	if _, _, err = h.createContext(parse("/Observations(7)/Datastream")); err == nil {
		t.Error("to-one create accepted")
	}
}

func TestStampCommitVersioningDisabled(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	r := httptest.NewRequest(http.MethodPost, "/istsos4/v1.1/Things", nil)

	payload := database.Payload{"name": json.RawMessage(`"t"`)}
	if err := h.stampCommit(r, payload, "create Thing"); err != nil {
		t.Errorf("stampCommit failed: %v", err)
	}
	if _, ok := payload["Commit"]; ok {
		t.Error("commit stamped with versioning disabled")
	}

	payload["Commit"] = json.RawMessage(`{"message": "m"}`)
	if err := h.stampCommit(r, payload, "create Thing"); err == nil {
		t.Error("client Commit accepted with versioning disabled")
	}
}

func TestStampCommitVersioningEnabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Versioning.Enabled = true
	h := testHandler(cfg)
	r := httptest.NewRequest(http.MethodPost, "/istsos4/v1.1/Things", nil)

	// synthesized commit
	payload := database.Payload{}
	if err := h.stampCommit(r, payload, "create Thing"); err != nil {
		t.Fatalf("stampCommit failed: %v", err)
	}
	var commit map[string]string
	if err := json.Unmarshal(payload["Commit"], &commit); err != nil {
		t.Fatalf("decode commit: %v", err)
	}
	if commit["author"] != "anonymous" || commit["message"] != "create Thing" {
		t.Errorf("commit = %v", commit)
	}

	// client commit keeps its message, author is overridden
	payload = database.Payload{"Commit": json.RawMessage(`{"message": "calibration run", "author": "spoofed"}`)}
	if err := h.stampCommit(r, payload, "create Thing"); err != nil {
		t.Fatalf("stampCommit failed: %v", err)
	}
	if err := json.Unmarshal(payload["Commit"], &commit); err != nil {
		t.Fatalf("decode commit: %v", err)
	}
	if commit["message"] != "calibration run" {
		t.Errorf("message = %q", commit["message"])
	}
	if commit["author"] != "anonymous" {
		t.Errorf("author = %q, want the authenticated user", commit["author"])
	}
}

func TestSingleTarget(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())

	entity, id, err := h.singleTarget(httptest.NewRequest(http.MethodPatch, "/istsos4/v1.1/Things(5)", nil))
	if err != nil {
		t.Fatalf("singleTarget failed: %v", err)
	}
	if entity.Name != "Thing" || id != 5 {
		t.Errorf("target = %s(%d)", entity.Name, id)
	}

	bad := []string{
		"/istsos4/v1.1/Things",
		"/istsos4/v1.1/Things(1)/Datastreams(2)",
		"/istsos4/v1.1/Things(1)/name",
		"/istsos4/v1.1/Things(1)/name/$value",
	}
	for _, path := range bad {
		if _, _, err := h.singleTarget(httptest.NewRequest(http.MethodPatch, path, nil)); err == nil {
			t.Errorf("singleTarget(%q) accepted", path)
		}
	}
}

func TestWritesToCommitsRejected(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())

	w := httptest.NewRecorder()
	h.handleCreate(w, httptest.NewRequest(http.MethodPost, "/istsos4/v1.1/Commits", strings.NewReader(`{}`)))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /Commits: status = %d, want 405", w.Code)
	}

	w = httptest.NewRecorder()
	h.handleUpdate(w, httptest.NewRequest(http.MethodPatch, "/istsos4/v1.1/Commits(1)", strings.NewReader(`{}`)))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PATCH /Commits(1): status = %d, want 405", w.Code)
	}

	w = httptest.NewRecorder()
	h.handleDelete(w, httptest.NewRequest(http.MethodDelete, "/istsos4/v1.1/Commits(1)", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /Commits(1): status = %d, want 405", w.Code)
	}
}

func TestBulkObservationsRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"object instead of array", `{"components": []}`},
		{"empty group list", `[]`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			h.BulkObservations(w, httptest.NewRequest(http.MethodPost, "/istsos4/v1.1/BulkObservations", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCreateRequiresCollectionPath(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	w := httptest.NewRecorder()
	h.handleCreate(w, httptest.NewRequest(http.MethodPost, "/istsos4/v1.1/Things(1)", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateRejectsIDChange(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	w := httptest.NewRecorder()
	body := strings.NewReader(`{"@iot.id": 99, "name": "renamed"}`)
	h.handleUpdate(w, httptest.NewRequest(http.MethodPatch, "/istsos4/v1.1/Things(5)", body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestResourceMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := testHandler(testConfig())
	w := httptest.NewRecorder()
	h.Resource(w, httptest.NewRequest(http.MethodOptions, "/istsos4/v1.1/Things", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
