package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"go.uber.org/zap"
)

// HealthCheck reports liveness. With ?check=db it also pings the database.
func (h *Handler) HealthCheck(c echo.Context) error {
	status := echo.Map{
		"status":  "healthy",
		"service": "pallet-service",
	}
	if c.QueryParam("check") != "db" {
		return c.JSON(http.StatusOK, status)
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		logger.FromContext(c).Error("Database health check failed", zap.Error(err))
		status["status"] = "unhealthy"
		status["database"] = "unreachable"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	status["database"] = "ok"
	return c.JSON(http.StatusOK, status)
}
