package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// TokenAuth accepts requests whose bearer token matches the bcrypt hash.
func TokenAuth(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if hash == "" || token == "" {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}
