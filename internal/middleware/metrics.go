package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// MetricsAuthMiddleware guards /metrics with HTTP basic authentication.
type MetricsAuthMiddleware struct {
	username [sha256.Size]byte
	password [sha256.Size]byte
	enabled  bool
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
// If both username and password are empty, authentication is disabled.
func NewMetricsAuthMiddleware(username, password string) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		username: sha256.Sum256([]byte(username)),
		password: sha256.Sum256([]byte(password)),
		enabled:  username != "" || password != "",
	}
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			m.unauthorized(w)
			return
		}

		// Comparing digests keeps the comparison constant-time regardless of
		// input length.
		userHash := sha256.Sum256([]byte(user))
		passHash := sha256.Sum256([]byte(pass))
		userMatch := subtle.ConstantTimeCompare(userHash[:], m.username[:]) == 1
		passMatch := subtle.ConstantTimeCompare(passHash[:], m.password[:]) == 1

		if !userMatch || !passMatch {
			m.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// unauthorized sends a 401 response with WWW-Authenticate header.
func (m *MetricsAuthMiddleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="postpilot-metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
