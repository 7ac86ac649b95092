// Package middleware provides HTTP middleware for the application.
//
// This file implements bearer token authentication. Clients send the raw
// token issued by postctl in the Authorization header:
//
//	Authorization: Bearer <64 hex chars>
//
// Only the SHA-256 hash of a token is stored, so a database leak does not
// expose usable credentials.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/handler"
	"github.com/DukeRupert/postpilot/internal/service"
)

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware holds dependencies for authentication middleware.
type AuthMiddleware struct {
	userService service.UserService
	logger      *slog.Logger
	adminEmails map[string]struct{}
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(userService service.UserService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		logger:      logger,
		adminEmails: make(map[string]struct{}),
	}
}

// WithAdminEmails grants admin access to the listed addresses in addition to
// users flagged is_admin. Comparison is case-insensitive.
func (m *AuthMiddleware) WithAdminEmails(emails []string) *AuthMiddleware {
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			m.adminEmails[e] = struct{}{}
		}
	}
	return m
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser resolves the bearer token, if any, and stores the user in the
// request context. It never rejects a request; RequireUser does that.
//
// Flow:
//
//	Request -> WithUser -> Handler
//	           |
//	           +-> Read Authorization header
//	           +-> Resolve token (if present)
//	           +-> Set user in context (if valid)
//	           +-> Call next handler (always)
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.userService.GetByAPIToken(r.Context(), token)
		if err != nil {
			if domain.ErrorCode(err) != domain.EUNAUTHORIZED {
				m.logger.Error("failed to resolve api token", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.SetUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser rejects requests without an authenticated user with 401.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
// Usage:
//
//	mux.Handle("GET /api/plan", authMw.WithUser(authMw.RequireUser(planHandler)))
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="postpilot"`)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin allows only administrators through. A user is an administrator
// when flagged is_admin or when their email is in the configured admin list.
// Bans are honored here too: a banned admin gets 403.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		if user.IsBanned || !m.isAdmin(user) {
			m.logger.Warn("admin access denied",
				"user_id", user.ID,
				"path", r.URL.Path,
			)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) isAdmin(user *domain.User) bool {
	if user.IsAdmin {
		return true
	}
	_, ok := m.adminEmails[strings.ToLower(user.Email)]
	return ok
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/plan", stack(planHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
