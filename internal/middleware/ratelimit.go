package middleware

import (
	"log"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// WebSocket upgrades per client per window
	WebSocketMax        int
	WebSocketExpiration time.Duration

	// CommandRate is the sustained rate of /command and /batch calls per
	// second across all clients. Zero disables the limit.
	CommandRate  float64
	CommandBurst int
}

// DefaultRateLimitConfig returns limits suited to a single local user
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		WebSocketMax:        60,
		WebSocketExpiration: 1 * time.Minute,
		CommandRate:         0,
	}
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	if config.WebSocketMax <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"ok":          false,
				"error":       "Too many connection attempts. Please wait before reconnecting.",
				"retry_after": int(config.WebSocketExpiration.Seconds()),
			})
		},
	})
}

// CommandRateLimiter is a token bucket shared by every command endpoint. The
// automation thread is a single queue, so the limit is global rather than per IP.
func CommandRateLimiter(config *RateLimitConfig) fiber.Handler {
	if config.CommandRate <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	burst := config.CommandBurst
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(config.CommandRate)))
	}
	bucket := rate.NewLimiter(rate.Limit(config.CommandRate), burst)

	return func(c *fiber.Ctx) error {
		if !bucket.Allow() {
			log.Printf("⚠️  [RATE-LIMIT] Command limit reached (%.1f/s) on %s", config.CommandRate, c.Path())
			return fiber.NewError(fiber.StatusTooManyRequests, "too many commands, slow down")
		}
		return c.Next()
	}
}
