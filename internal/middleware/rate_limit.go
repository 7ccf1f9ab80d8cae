package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// KeyFunc picks the subject a rate limit counts against.
type KeyFunc func(c *fiber.Ctx) string

// RateLimit allows maxPerMin requests per subject per minute using Redis
// counters. It is a no-op without Redis and fails open on cache errors.
func RateLimit(cache *redis.Client, scope string, maxPerMin int, key KeyFunc, message string) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := strings.TrimSpace(key(c))
		if subject == "" {
			subject = c.IP()
		}
		k := "rl:" + scope + ":" + subject
		cnt, err := cache.Incr(c.UserContext(), k).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), k, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, message)
		}
		return c.Next()
	}
}

// LoginRateLimit limits login attempts per phone, or per IP when the body
// names none.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return RateLimit(cache, "login", maxPerMin, func(c *fiber.Ctx) string {
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		return req.Phone
	}, "too many login attempts, try again later")
}

// PINRateLimit limits PIN submissions per authenticated user. The PIN check
// itself keeps no failure count.
func PINRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return RateLimit(cache, "pin", maxPerMin, UserID, "too many PIN attempts, try again later")
}
