// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/logging"
)

// UserKey is the context key for the authenticated user name.
const UserKey contextKey = "user"

// anonymousUser is the author recorded when anonymous access is permitted.
const anonymousUser = "anonymous"

// Claims are the JWT claims sta-go issues and accepts: the registered set
// plus the user's database role.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens (HS256). Reads may pass anonymously when
// security.anonymous_viewer is set; every write requires a valid token.
func Auth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Authorization {
				next.ServeHTTP(w, r.WithContext(withUser(r.Context(), anonymousUser)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				if cfg.AnonymousViewer && isRead(r.Method) {
					next.ServeHTTP(w, r.WithContext(withUser(r.Context(), anonymousUser)))
					return
				}
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := parseToken(token, cfg.JWTSecret)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Token rejected")
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), claims.Subject)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func parseToken(token, secret string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser returns the authenticated user, or the anonymous marker.
func GetUser(ctx context.Context) string {
	if user, ok := ctx.Value(UserKey).(string); ok && user != "" {
		return user
	}
	return anonymousUser
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="sta-go"`)
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"code":401,"type":"error","message":%q}`, detail)
}
