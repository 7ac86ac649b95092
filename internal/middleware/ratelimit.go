package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter tracks request counts per key in fixed windows. It protects
// the generation endpoints from bursts; monthly quota is enforced by the gate.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*rateLimitEntry

	stopOnce sync.Once
	stop     chan struct{}
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Stop to end the loop.
func NewRateLimiter(maxAttempts int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
		stop:        make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request from the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, exists := rl.entries[key]

	if !exists || now.Sub(entry.windowStart) >= rl.window {
		rl.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true
	}

	if entry.count < rl.maxAttempts {
		entry.count++
		return true
	}

	return false
}

// TimeUntilReset returns how long until the rate limit resets for a key.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, exists := rl.entries[key]
	if !exists {
		return 0
	}

	elapsed := rl.now().Sub(entry.windowStart)
	if elapsed >= rl.window {
		return 0
	}

	return rl.window - elapsed
}

// Stop ends the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup periodically removes expired entries to prevent memory leaks.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, entry := range rl.entries {
		if now.Sub(entry.windowStart) >= rl.window {
			delete(rl.entries, key)
		}
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a rate limiter for use as HTTP middleware.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns middleware that rate limits requests. Authenticated requests
// are keyed by user so clients behind one NAT do not starve each other;
// anonymous requests fall back to the client IP.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		if !m.limiter.Allow(key) {
			m.logger.Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"method", r.Method,
			)

			retryAfter := int(m.limiter.TimeUntilReset(key).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit("ratelimit.limit"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if user := auth.GetUser(r.Context()); user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + getClientIP(r)
}

// =============================================================================
// Helpers
// =============================================================================

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if clientIP := strings.TrimSpace(first); clientIP != "" {
			return clientIP
		}
	}

	// Check X-Real-IP (nginx)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
