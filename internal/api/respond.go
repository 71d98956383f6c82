// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/istsos/sta-go/internal/database"
	"github.com/istsos/sta-go/internal/logging"
	"github.com/istsos/sta-go/internal/query/compiler"
	"github.com/istsos/sta-go/internal/query/filter"
	"github.com/istsos/sta-go/internal/query/lexer"
	"github.com/istsos/sta-go/internal/query/parser"
	"github.com/istsos/sta-go/internal/query/temporal"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= 500 {
		logging.Ctx(r.Context()).Error().Int("status", status).Str("path", r.URL.Path).Msg(message)
	} else {
		logging.Ctx(r.Context()).Debug().Int("status", status).Str("path", r.URL.Path).Msg(message)
	}
	writeJSON(w, status, errorBody{Code: status, Type: "error", Message: message})
}

// respondError maps the engine's error taxonomy onto HTTP status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound        *database.NotFoundError
		relatedNotFound *database.RelatedNotFoundError
		conflict        *database.ConflictError
		payload         *database.PayloadError
		pathErr         *parser.PathError
		parseErr        *parser.ParseError
		tokenizeErr     *lexer.TokenizeError
		filterErr       *filter.ParseError
		unsupportedFn   *filter.UnsupportedFunctionError
		invalidField    *compiler.InvalidFieldError
		resultFormat    *compiler.ResultFormatError
		pathCompile     *compiler.PathCompileError
		expandErr       *temporal.ExpandError
		pgErr           *pgconn.PgError
	)

	switch {
	case errors.As(err, &notFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &pathErr):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &relatedNotFound),
		errors.As(err, &payload),
		errors.As(err, &parseErr),
		errors.As(err, &tokenizeErr),
		errors.As(err, &filterErr),
		errors.As(err, &unsupportedFn),
		errors.As(err, &invalidField),
		errors.As(err, &resultFormat),
		errors.As(err, &pathCompile),
		errors.As(err, &expandErr),
		errors.Is(err, temporal.ErrAsOfInFuture),
		errors.Is(err, temporal.ErrFromToInverted):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "query timed out")
	case errors.As(err, &pgErr) && pgErr.Code == "42501":
		// the assumed role lacks the grant for this operation
		writeError(w, r, http.StatusUnauthorized, "insufficient privilege for this operation")
	case errors.As(err, &pgErr) && pgErr.Code[:2] == "08":
		// class 08: connection exceptions
		writeError(w, r, http.StatusServiceUnavailable, "database unavailable")
	case errors.As(err, &pgErr):
		// remaining database rejections are request errors; the message is
		// safe to echo, the SQLSTATE is not
		writeError(w, r, http.StatusBadRequest, pgErr.Message)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
