package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// BorrowRateLimit caps borrow attempts per account per minute using Redis if
// available. Without a cache it is a no-op, and cache errors fail open.
func BorrowRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		account, _ := c.Locals("account").(string)
		if account == "" {
			account = c.IP()
		}
		key := "rl:borrow:" + account
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many borrow attempts, try again later")
		}
		return c.Next()
	}
}
