package middleware

import (
	"strconv"
	"time"

	"github.com/darehouse/backend/internal/metrics"
	"github.com/gofiber/fiber/v2"
)

// MetricsMiddleware records request counts and latency by route pattern.
func MetricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Method(), route, strconv.Itoa(c.Response().StatusCode()), time.Since(start))
		return err
	}
}
