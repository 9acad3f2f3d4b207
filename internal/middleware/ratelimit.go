package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
)

const rateLimitPeriod = time.Minute

// RateLimiter allows limit requests per client IP per minute, counted in redis
// under prefix. A nil client or a non-positive limit disables it.
func RateLimiter(client *redis.Client, prefix string, limit int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if client == nil || limit <= 0 {
				return next(c)
			}

			ctx := c.Request().Context()
			key := "rate_limit:" + prefix + ":" + c.RealIP()

			count, err := client.Incr(ctx, key).Result()
			if err != nil {
				// fail open while redis is unreachable
				logger.FromContext(c).Warn("Rate limiter unavailable", zap.Error(err))
				return next(c)
			}
			if count == 1 {
				client.Expire(ctx, key, rateLimitPeriod)
			}

			if count > int64(limit) {
				logger.FromContext(c).Warn("Rate limit exceeded", zap.String("ip", c.RealIP()), zap.Int64("count", count))
				prometheus.RecordRateLimited()
				c.Response().Header().Set("Retry-After", "60")
				return response.Fail(c, http.StatusTooManyRequests, "too many requests, try again later")
			}

			return next(c)
		}
	}
}
