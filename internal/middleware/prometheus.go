// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/istsos/sta-go/internal/metrics"
	"github.com/istsos/sta-go/internal/model"
)

// Metrics instruments requests with the Prometheus counters. The entity label
// is the first collection name of the path, so cardinality stays bounded no
// matter how deep the resource path nests.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		metrics.RecordRequest(r.Method, entityLabel(r.URL.Path),
			strconv.Itoa(wrapper.status), time.Since(start))
	})
}

// entityLabel extracts the addressed collection from the path, "service" for
// the root document, "other" for anything unrecognized.
func entityLabel(path string) string {
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		name := part
		if i := strings.IndexByte(name, '('); i > 0 {
			name = name[:i]
		}
		if entity, ok := model.Lookup(name); ok {
			return entity.Plural
		}
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, "v1.1") {
		return "service"
	}
	return "other"
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
