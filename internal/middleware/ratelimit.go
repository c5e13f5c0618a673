package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careconnect/pairing-server/internal/audit"
	"github.com/careconnect/pairing-server/internal/config"
	apperrors "github.com/careconnect/pairing-server/internal/errors"
)

// Limiter admits or denies one request for key within a sliding window.
// service.RateLimiter is the Redis-backed implementation.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time)
}

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 15 * time.Minute
)

type limitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryLimiter is a process-local sliding log limiter used when Redis is
// not configured.
type MemoryLimiter struct {
	mu          sync.Mutex
	store       map[string]*limitEntry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		store:       make(map[string]*limitEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now

	for key, entry := range l.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(l.store, key)
		}
	}

	if len(l.store) > maxEntries {
		drop := len(l.store) / 5
		for key := range l.store {
			if drop == 0 {
				break
			}
			delete(l.store, key)
			drop--
		}
	}
}

func (l *MemoryLimiter) CheckLimit(_ context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	entry, exists := l.store[key]
	if !exists {
		entry = &limitEntry{}
		l.store[key] = entry
	}
	entry.lastAccess = now

	windowStart := now.Add(-window)
	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	if len(entry.timestamps) >= limit {
		return false, entry.timestamps[0].Add(window)
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, now.Add(window)
}

// UserRateLimitMiddleware limits authenticated requests per user.
type UserRateLimitMiddleware struct {
	limiter Limiter
	limit   int
}

func NewUserRateLimitMiddleware(limiter Limiter, limit int) *UserRateLimitMiddleware {
	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	return &UserRateLimitMiddleware{limiter: limiter, limit: limit}
}

func (m *UserRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, resetAt := m.limiter.CheckLimit(r.Context(), "user:"+user.ID, m.limit, config.RateLimitWindow)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			log.Warn().Str("userId", user.ID).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:   audit.EventRateLimitExceed,
				UserID: user.ID,
			})
			w.Header().Set("Retry-After", retryAfter(resetAt))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfter(resetAt time.Time) string {
	seconds := int(time.Until(resetAt).Seconds()) + 1
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
