package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersMiddleware adds HTTP security headers to all responses.
type SecurityHeadersMiddleware struct {
	isSecure bool // Whether to enable HTTPS-specific headers (true in production)
}

// NewSecurityHeadersMiddleware creates a new security headers middleware.
// Set isSecure to true in production to enable HSTS.
func NewSecurityHeadersMiddleware(isSecure bool) *SecurityHeadersMiddleware {
	return &SecurityHeadersMiddleware{
		isSecure: isSecure,
	}
}

// Handler returns middleware that sets security headers on all responses.
// The service only serves JSON, so the CSP forbids every resource type.
func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if m.isSecure {
			// max-age=31536000 = 1 year
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// Usage counters and plan state must never be served from a cache.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}
