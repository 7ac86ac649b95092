// Package auth provides request context helpers for the authenticated
// principal and the entitlement decision made for the request.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/postpilot/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey     contextKey = "user"
	decisionContextKey contextKey = "decision"
)

// GetUser retrieves the authenticated user from the context.
//
// Returns nil if no user is authenticated.
//
// Usage:
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // Handle unauthenticated request
//	}
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest retrieves the authenticated user from the request context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores a user in the context. Called by the bearer token
// middleware once the token resolves.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetDecision returns the allowing gate decision recorded for this request,
// or nil when the request did not pass through the entitlement middleware.
func GetDecision(ctx context.Context) *domain.Decision {
	d, ok := ctx.Value(decisionContextKey).(*domain.Decision)
	if !ok {
		return nil
	}
	return d
}

// SetDecision records the gate decision in the context.
func SetDecision(ctx context.Context, d *domain.Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey, d)
}
