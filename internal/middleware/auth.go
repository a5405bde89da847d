package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

// KeyQueryParam carries the shared key for clients that cannot set headers (browsers opening /ws)
const KeyQueryParam = "apiKey"

// SharedKey validates the shared API key. A request that carries no key at all
// is treated as presenting defaultKey, so same-machine tools work without
// configuration. expected is consulted per request; the key can change with
// the permission policy.
func SharedKey(header, defaultKey string, expected func() string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := c.Get(header)
		if presented == "" {
			presented = c.Query(KeyQueryParam)
		}
		if presented == "" {
			presented = defaultKey
		}

		want := expected()
		if want == "" {
			want = defaultKey
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(want)) != 1 {
			log.Printf("🔒 [AUTH] Rejected %s %s from %s: invalid API key", c.Method(), c.Path(), c.IP())
			return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
		}
		return c.Next()
	}
}
