package routers

import (
	"context"
	"net/http"

	"orchestrator-api/internal/health"

	"github.com/labstack/echo/v4"
)

// HealthProber reports the health of every registered client.
type HealthProber interface {
	Health(ctx context.Context) *health.HealthProbeResponse
}

func RegisterHealthRoutes(e *echo.Group, prober HealthProber) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "")
	})
	e.GET("/info", func(c echo.Context) error {
		res := prober.Health(c.Request().Context())
		status := http.StatusOK
		if !res.Healthy() {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, res)
	})
}
