package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func serveLogged(t *testing.T, req *http.Request, status int) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	rec := httptest.NewRecorder()
	NewRequestLoggingMiddleware(logger).Handler(handler).ServeHTTP(rec, req)
	return buf.String(), rec
}

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/plan", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("User-Agent", "postpilot-sdk/1.2")

	logOutput, _ := serveLogged(t, req, http.StatusOK)

	for _, want := range []string{"GET", "/api/plan", "200", "duration", "192.168.1.1", "postpilot-sdk/1.2", "request_id"} {
		if !strings.Contains(logOutput, want) {
			t.Errorf("log should contain %q, got: %s", want, logOutput)
		}
	}
}

func TestRequestLoggingMiddleware_LogsClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/plan", nil)
	req.RemoteAddr = "10.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.195")

	logOutput, _ := serveLogged(t, req, http.StatusOK)

	if !strings.Contains(logOutput, "203.0.113.195") {
		t.Errorf("log should contain client IP from X-Forwarded-For, got: %s", logOutput)
	}
}

func TestRequestLoggingMiddleware_LogsErrorStatusAtWarn(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/ai/caption", nil)

	logOutput, _ := serveLogged(t, req, http.StatusBadGateway)

	if !strings.Contains(logOutput, "502") {
		t.Errorf("log should contain 502 status, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "level=WARN") {
		t.Errorf("5xx should log at WARN level, got: %s", logOutput)
	}
}

func TestRequestLoggingMiddleware_DoesNotLogSensitiveQueryParams(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/admin/users?plan=pro&api_key=secrettoken123", nil)

	logOutput, _ := serveLogged(t, req, http.StatusOK)

	if strings.Contains(logOutput, "secrettoken123") {
		t.Errorf("log should NOT contain sensitive value, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "plan=pro") {
		t.Errorf("log should keep non-sensitive params, got: %s", logOutput)
	}
}

func TestRequestLoggingMiddleware_ExcludesNoisyPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			logOutput, rec := serveLogged(t, httptest.NewRequest("GET", path, nil), http.StatusOK)
			if logOutput != "" {
				t.Errorf("%s should not be logged, got: %s", path, logOutput)
			}
			if rec.Header().Get(RequestIDHeader) != "" {
				t.Errorf("%s should not get a request id", path)
			}
		})
	}
}

func TestRequestLoggingMiddleware_RequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		_, rec := serveLogged(t, httptest.NewRequest("GET", "/api/plan", nil), http.StatusOK)
		if len(rec.Header().Get(RequestIDHeader)) != 36 {
			t.Errorf("expected generated UUID, got %q", rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/plan", nil)
		req.Header.Set(RequestIDHeader, "edge-1234")
		logOutput, rec := serveLogged(t, req, http.StatusOK)
		if rec.Header().Get(RequestIDHeader) != "edge-1234" {
			t.Errorf("request id = %q, want edge-1234", rec.Header().Get(RequestIDHeader))
		}
		if !strings.Contains(logOutput, "edge-1234") {
			t.Errorf("log should contain request id, got: %s", logOutput)
		}
	})

	t.Run("rejected when malformed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/plan", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
		_, rec := serveLogged(t, req, http.StatusOK)
		if len(rec.Header().Get(RequestIDHeader)) != 36 {
			t.Errorf("oversized id should be replaced, got %q", rec.Header().Get(RequestIDHeader))
		}
	})
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		path, query, want string
	}{
		{"/a", "", "/a"},
		{"/a", "token=x", "/a?token=[REDACTED]"},
		{"/a", "Token=x&plan=pro", "/a?Token=[REDACTED]&plan=pro"},
		{"/a", "flag", "/a"},
	}

	for _, tt := range tests {
		if got := sanitizePath(tt.path, tt.query); got != tt.want {
			t.Errorf("sanitizePath(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}
}
