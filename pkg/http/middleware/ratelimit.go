package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds request rates per client.
type RateLimitConfig struct {
	RPS   rate.Limit
	Burst int
	TTL   time.Duration // idle time before a client's bucket is dropped
}

type rlClient struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimit returns middleware enforcing a per-client token bucket, keyed by
// client IP. Rejected requests get 429 with a Retry-After hint.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * time.Minute
	}

	var mu sync.Mutex
	clients := make(map[string]*rlClient)

	sweep := func(now time.Time) {
		for ip, cl := range clients {
			if now.Sub(cl.seen) > cfg.TTL {
				delete(clients, ip)
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			now := time.Now()

			mu.Lock()
			cl, ok := clients[ip]
			if !ok {
				if len(clients) >= 1024 {
					sweep(now)
				}
				cl = &rlClient{limiter: rate.NewLimiter(cfg.RPS, cfg.Burst)}
				clients[ip] = cl
			}
			cl.seen = now
			allowed := cl.limiter.Allow()
			mu.Unlock()

			if !allowed {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": "Too Many Requests",
				})
			}
			return next(c)
		}
	}
}
