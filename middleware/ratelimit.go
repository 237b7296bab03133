package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"golang.org/x/time/rate"
)

// UserRateLimiter manages a token bucket per user.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows r actions per second with burst b.
func NewUserRateLimiter(r rate.Limit, b int) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: make(map[string]*userLimiter),
		rate:     r,
		burst:    b,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// GetLimiter returns the limiter for key, creating it on first use.
func (l *UserRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = ul
	}
	ul.lastSeen = l.now()
	return ul.limiter
}

func (l *UserRateLimiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Sweep drops limiters idle longer than the idle window and reports how many.
func (l *UserRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	removed := 0
	for key, ul := range l.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (l *UserRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// RateLimitMiddleware limits requests per user, falling back to the client IP.
func RateLimitMiddleware(limiter *UserRateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := UserID(c)
		if key == "" {
			key = fiberutils.CopyString(c.IP())
		}
		if !limiter.Allow(key) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"ok":     false,
				"reason": "too many requests",
			})
		}
		return c.Next()
	}
}
