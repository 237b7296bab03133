// middleware/user_context.go
package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

const (
	LocalUserID   = "user_id"
	LocalLocation = "location"
)

// UserContextMiddleware reads the identity and device zone set by the gateway.
// Header values are copied out of the request buffer because the owner id keys
// sessions and timers that outlive the request.
// Routes under securedPrefix must carry X-User-ID unless listed in exempt, which
// authenticate on their own. An unknown X-Timezone is rejected so a typo never
// silently shifts the daily boundaries.
func UserContextMiddleware(securedPrefix string, logger *zap.Logger, exempt ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := fiberutils.CopyString(strings.TrimSpace(c.Get("X-User-ID")))

		if strings.HasPrefix(c.Path(), securedPrefix) && userID == "" && !isExempt(c.Path(), exempt) {
			logger.Debug("user_context_missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		if tz := strings.TrimSpace(c.Get("X-Timezone")); tz != "" {
			// the location keeps its name
			tz = fiberutils.CopyString(tz)
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "unknown X-Timezone " + tz,
				})
			}
			c.Locals(LocalLocation, loc)
		}

		if userID != "" {
			c.Locals(LocalUserID, userID)
		}
		return c.Next()
	}
}

func isExempt(path string, exempt []string) bool {
	for _, p := range exempt {
		if path == p {
			return true
		}
	}
	return false
}

// UserID returns the caller set by UserContextMiddleware or SSEAuthMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// Location returns the device zone, or nil when the caller sent none.
func Location(c *fiber.Ctx) *time.Location {
	loc, _ := c.Locals(LocalLocation).(*time.Location)
	return loc
}
