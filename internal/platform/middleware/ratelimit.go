package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/clinicbook/clinicbook/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops limiters not used for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore holds one limiter per caller key.
type rateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	config   RateLimitConfig
	nowFn    func() time.Time
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		config:   cfg,
		nowFn:    time.Now,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.BurstSize)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (s *rateLimiterStore) evictIdle() int {
	if s.config.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.nowFn().Add(-s.config.IdleTTL)
	n := 0
	for k, e := range s.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(s.limiters, k)
			n++
		}
	}
	return n
}

// retryAfter is the whole number of seconds until limiter has a token.
func retryAfter(l *rate.Limiter, now time.Time) int {
	if l.Limit() <= 0 {
		return 1
	}
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimit limits requests per authenticated user, or per client IP for
// anonymous requests.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)
	var requests int64
	var mu sync.Mutex

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = "user:" + uid
			}

			// Occasional sweep of idle callers.
			mu.Lock()
			requests++
			sweep := requests%1024 == 0
			mu.Unlock()
			if sweep {
				store.evictIdle()
			}

			l := store.getLimiter(key)
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			now := store.nowFn()
			if !l.AllowN(now, 1) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter(l, now)))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return writeError(c, http.StatusTooManyRequests, kindRateLimited, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
