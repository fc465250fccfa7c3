package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter counts failures per key within a fixed window.
//
// This is the only mutable state shared between requests; it is local to
// the process and guarded by mu.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry

	stop     chan struct{}
	stopOnce sync.Once
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Close to stop the loop.
func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
		stop:        make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow reports whether key is still under the limit. It does not count
// the request; only RecordFailure does.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.entries[key]
	if !exists {
		return true
	}

	if rl.now().Sub(entry.windowStart) > rl.window {
		delete(rl.entries, key)
		return true
	}

	return entry.count < rl.maxAttempts
}

// RecordFailure counts one failed attempt for key.
func (rl *RateLimiter) RecordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, exists := rl.entries[key]

	if !exists || now.Sub(entry.windowStart) > rl.window {
		rl.entries[key] = &rateLimitEntry{
			count:       1,
			windowStart: now,
		}
		return
	}

	entry.count++
}

// Reset clears the rate limit for a key (e.g., after successful login).
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, key)
}

// TimeUntilReset returns how long until the rate limit resets for a key.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

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

// Close stops the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Close() {
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
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.entries {
				if now.Sub(entry.windowStart) > rl.window {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// =============================================================================
// Login Rate Limiter
// =============================================================================

// LoginRateLimiter blocks clients with too many failed logins. It
// implements handler.LoginLimiter.
type LoginRateLimiter struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewLoginRateLimiter creates a login limiter, e.g. 5 failures per 15 minutes.
func NewLoginRateLimiter(maxAttempts int, window time.Duration, logger *slog.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{
		limiter: NewRateLimiter(maxAttempts, window),
		logger:  logger,
	}
}

// Limit returns middleware that answers 429 once the client is blocked.
func (l *LoginRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := handler.ClientIP(r)

		if !l.limiter.Allow(clientIP) {
			l.logger.Warn("rate limit exceeded",
				"ip", clientIP,
				"path", r.URL.Path,
				"method", r.Method,
			)

			retryAfter := int(l.limiter.TimeUntilReset(clientIP).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			handler.ErrorResponse(w, r, l.logger, domain.RateLimit("LoginRateLimiter.Limit"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RecordFailedLogin records a failed login attempt for the given IP.
func (l *LoginRateLimiter) RecordFailedLogin(ip string) {
	l.limiter.RecordFailure(ip)
}

// ResetLogin clears the rate limit for an IP after successful login.
func (l *LoginRateLimiter) ResetLogin(ip string) {
	l.limiter.Reset(ip)
}

// Close stops the underlying limiter.
func (l *LoginRateLimiter) Close() {
	l.limiter.Close()
}

var _ handler.LoginLimiter = (*LoginRateLimiter)(nil)
