package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// RequireModerator gates /admin routes on the roles forwarded by the Gateway.
// The admin service re-checks the stored role before mutating; this is the
// cheap first line at the HTTP edge.
func RequireModerator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if r == "admin" || r == "organizer" {
				return c.Next()
			}
		}
		log.Printf("[MODERATOR] access denied for %s on %s", c.Locals("user_id"), c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "admin or organizer role required",
			"code":    "AccessDenied",
		})
	}
}
