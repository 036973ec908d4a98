// Package auth binds the shared bearer-token verifier to the progression API:
// its scopes, its public paths and its per-route scope checks.
package auth

import (
	"context"
	"errors"
	"net/http"

	authlib "example.com/progression/pkg/auth"
)

// Scopes accepted by the progression API.
const (
	ScopeProgressionRead  = "progression:read"
	ScopeProgressionWrite = "progression:write"
	ScopeProgressionAdmin = "progression:admin"
)

type (
	Claims = authlib.Claims
	Config = authlib.Config
)

// ErrForbidden is returned by Require when the token lacks every requested scope.
var ErrForbidden = errors.New("insufficient scope")

var publicPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// NewMiddleware verifies bearer tokens on every path except health and metrics.
func NewMiddleware(cfg Config) authlib.Middleware {
	return authlib.NewMiddleware(cfg, func(r *http.Request) bool { return publicPaths[r.URL.Path] })
}

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext returns the claims the middleware verified.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}

// Require returns the caller's claims when they grant any of scopes.
func Require(ctx context.Context, scopes ...string) (*Claims, error) {
	claims, ok := FromContext(ctx)
	if !ok {
		return nil, authlib.ErrMissingToken
	}
	if !claims.HasAnyScope(scopes...) {
		return nil, ErrForbidden
	}
	return claims, nil
}
