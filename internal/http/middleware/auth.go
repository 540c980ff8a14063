package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/quotalink/internal/http/util"
)

const identityLocalsKey = "identity"

// Auth requires a bearer token and stores the verified identity on the context.
func Auth(verifier *util.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "No token provided. Access denied.",
			})
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid token format. Access denied.",
			})
		}

		identity, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token.",
			})
		}

		c.Locals(identityLocalsKey, identity)
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *fiber.Ctx) (*util.Identity, bool) {
	identity, ok := c.Locals(identityLocalsKey).(*util.Identity)
	return identity, ok && identity != nil
}
