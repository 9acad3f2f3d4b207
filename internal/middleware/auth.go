package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/jwtutil"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/pkg/revocation"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// JWTAuth validates the Bearer token and rejects revoked tokens
func JWTAuth(jwtUtil *jwtutil.JWTUtil, revoked revocation.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header", zap.String("path", c.Path()))
				prometheus.RecordAuthError("missing_token")
				return response.Fail(c, http.StatusUnauthorized, "authorization token is required")
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("malformed_token")
				return response.Fail(c, http.StatusUnauthorized, "invalid authorization format, expected Bearer token")
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					log.Warn("Expired JWT token")
					prometheus.RecordAuthError("expired_token")
					return response.Fail(c, http.StatusUnauthorized, "token has expired")
				}
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return response.Fail(c, http.StatusUnauthorized, "invalid token")
			}

			isRevoked, err := revoked.IsRevoked(c.Request().Context(), claims.ID)
			if err != nil {
				log.Error("Failed to check token revocation", zap.Error(err))
				return response.Fail(c, http.StatusInternalServerError, "internal server error")
			}
			if isRevoked {
				log.Warn("Revoked token used", zap.Uint("user_id", claims.UserID))
				prometheus.RecordAuthError("revoked_token")
				return response.Fail(c, http.StatusUnauthorized, "token has been revoked")
			}

			// Store user info in context for later use
			c.Set(claimsKey, claims)
			c.Set("user_id", claims.UserID)
			c.Set("username", claims.Username)
			c.Set("is_admin", claims.IsAdmin)

			log = log.With(zap.Uint("user_id", claims.UserID))
			c.Set("logger", log)
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context(), log)))

			return next(c)
		}
	}
}

// AdminOnly rejects callers without the admin flag. It must run after JWTAuth.
func AdminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if isAdmin, _ := c.Get("is_admin").(bool); !isAdmin {
			logger.FromContext(c).Warn("Non-admin access to admin route", zap.String("path", c.Path()))
			return response.Fail(c, http.StatusForbidden, "admin privileges required")
		}
		return next(c)
	}
}

// GetClaims returns the validated token claims
func GetClaims(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.UserClaims)
	return claims, ok
}

// GetCaller returns the authenticated caller
func GetCaller(c echo.Context) visibility.Caller {
	userID, _ := c.Get("user_id").(uint)
	isAdmin, _ := c.Get("is_admin").(bool)
	return visibility.Caller{UserID: userID, IsAdmin: isAdmin}
}
