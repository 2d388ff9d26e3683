package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/kvasilopoulos/contact-center/internal/httputil"
	"github.com/kvasilopoulos/contact-center/internal/telemetry"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"
)

// DefaultExcludedPaths bypass the limiter.
var DefaultExcludedPaths = []string{
	"/api/v1/health",
	"/api/v1/ready",
	"/health",
	"/docs",
	"/redoc",
	"/openapi.json",
	"/metrics",
}

// Config describes the per-client limit.
type Config struct {
	RequestsPerMinute int
	BurstSize         int
	ExcludedPaths     []string
}

// Capacity returns the bucket capacity, defaulting to twice the per-minute
// rate.
func (c Config) Capacity() float64 {
	if c.BurstSize > 0 {
		return float64(c.BurstSize)
	}
	return float64(c.RequestsPerMinute * 2)
}

// RefillRate returns tokens per second.
func (c Config) RefillRate() float64 {
	return float64(c.RequestsPerMinute) / 60
}

// RetryAfterSeconds is the time to earn one token, rounded up.
func (c Config) RetryAfterSeconds() int {
	rate := c.RefillRate()
	if rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / rate))
}

// Middleware returns chi middleware enforcing a token bucket per client.
func Middleware(store Store, cfg Config, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	excluded := cfg.ExcludedPaths
	if excluded == nil {
		excluded = DefaultExcludedPaths
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, p := range excluded {
		skip[p] = struct{}{}
	}
	limit := strconv.Itoa(cfg.RequestsPerMinute)
	retryAfter := cfg.RetryAfterSeconds()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			clientID := ClientID(r)
			decision, err := store.Take(r.Context(), clientID)
			if err != nil {
				// Fail open: a broken limiter must not reject traffic.
				slog.Warn("rate limit store error, allowing request",
					"request_id", httputil.RequestIDFromContext(r.Context()),
					"client_id", clientID,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(headerRateLimitLimit, limit)

			if !decision.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", httputil.RequestIDFromContext(r.Context()),
					"client_id", clientID,
					"path", r.URL.Path,
					"limit", cfg.RequestsPerMinute,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit()
				}
				w.Header().Set(headerRateLimitRemaining, "0")
				w.Header().Set(headerRetryAfter, strconv.Itoa(retryAfter))
				httputil.WriteRateLimitError(w, retryAfter)
				return
			}

			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(int(decision.Remaining)))
			next.ServeHTTP(w, r)
		})
	}
}
