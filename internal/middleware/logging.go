package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id for a request. An incoming
// value is reused when it looks sane; otherwise a new UUID is issued.
const RequestIDHeader = "X-Request-ID"

// RequestLoggingMiddleware logs HTTP requests with timing and status information.
type RequestLoggingMiddleware struct {
	logger    *slog.Logger
	skipPaths []string
}

// NewRequestLoggingMiddleware creates a new request logging middleware.
func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{
		logger:    logger,
		skipPaths: []string{"/health", "/metrics"},
	}
}

// Handler returns middleware that logs all HTTP requests.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		requestID := requestID(r)
		w.Header().Set(RequestIDHeader, requestID)

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
			"user_agent", r.UserAgent(),
		}

		if wrapped.statusCode >= 500 {
			m.logger.Warn("request", attrs...)
		} else {
			m.logger.Info("request", attrs...)
		}
	})
}

// shouldSkip returns true for paths that should not be logged (too noisy).
func (m *RequestLoggingMiddleware) shouldSkip(path string) bool {
	for _, skip := range m.skipPaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" && len(id) <= 64 && !strings.ContainsAny(id, " \r\n") {
		return id
	}
	return uuid.NewString()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// sensitiveParams are query parameter names whose values are redacted.
var sensitiveParams = map[string]struct{}{
	"token":         {},
	"code":          {},
	"key":           {},
	"secret":        {},
	"api_key":       {},
	"apikey":        {},
	"access_token":  {},
	"session_id":    {},
	"refresh_token": {},
}

// sanitizePath removes sensitive query parameters from the path for logging.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}

	var safeParts []string
	for _, part := range strings.Split(rawQuery, "&") {
		key, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if _, sensitive := sensitiveParams[strings.ToLower(key)]; sensitive {
			safeParts = append(safeParts, key+"=[REDACTED]")
		} else {
			safeParts = append(safeParts, part)
		}
	}

	if len(safeParts) == 0 {
		return path
	}
	return path + "?" + strings.Join(safeParts, "&")
}
