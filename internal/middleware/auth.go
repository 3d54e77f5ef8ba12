package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/kommyut/internal/config"
	"github.com/example/kommyut/internal/models"
	"github.com/example/kommyut/internal/utils"
)

const callerContextKey = "currentCaller"

// Caller is the authenticated identity attached to a request.
type Caller struct {
	UID  string
	Role models.Role
}

// CanAccess reports whether the caller may act on uid's resources:
// the owner always can, staff from manager up can act on anyone.
func (c Caller) CanAccess(uid string) bool {
	return c.UID == uid || c.Role.AtLeast(models.RoleManager)
}

// AuthMiddleware validates JWT tokens and loads the caller into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims, err := utils.ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(callerContextKey, Caller{UID: claims.UID, Role: claims.Role})
		return c.Next()
	}
}

// RequireRole rejects callers ranked below min. Must run after AuthMiddleware.
func RequireRole(min models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := GetCurrentCaller(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthenticated")
		}
		if !caller.Role.AtLeast(min) {
			return fiber.NewError(fiber.StatusForbidden, "requires "+string(min)+" role or higher")
		}
		return c.Next()
	}
}

// GetCurrentCaller extracts the authenticated caller from context.
func GetCurrentCaller(c *fiber.Ctx) (Caller, bool) {
	caller, ok := c.Locals(callerContextKey).(Caller)
	return caller, ok
}
