package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/obaatanpa/internal/utils"
)

const userContextKey = "currentUserID"

// AuthMiddleware validates bearer session tokens and stores the account ID in
// the request locals. It does not hit the database.
func AuthMiddleware(sessions *utils.SessionIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		userID, err := sessions.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(userContextKey, userID)
		return c.Next()
	}
}

// GetCurrentUserID extracts the authenticated account ID from the request.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(userContextKey).(uuid.UUID)
	return id, ok
}
