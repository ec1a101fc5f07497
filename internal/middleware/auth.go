package middleware

import (
	"strings"

	"github.com/darehouse/backend/internal/auth"
	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const CtxAddress = "address"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		addr, err := ton.NormalizeAddress(claims.Address)
		if err != nil || addr == "" {
			log.Debug("jwt carries bad address", zap.String("address", claims.Address))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxAddress, addr)
		return c.Next()
	}
}

// GetAddress returns the caller's normalized wallet address.
func GetAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals(CtxAddress).(string)
	return addr
}

// AdminMiddleware requires the caller to be a house admin.
func AdminMiddleware(isAdmin func(address string) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isAdmin(GetAddress(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}
