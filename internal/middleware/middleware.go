package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"netgiropay/internal/models"
)

// APIAuth validates the Token header against the admin API key, or against
// its SHA-256 hex digest when only the hash is configured.
func APIAuth(apiKey, apiKeyHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get("Token")
			if token == "" {
				return c.JSON(http.StatusUnauthorized, models.APIResponse{Status: false, Msg: "Token is required"})
			}

			if apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
				return next(c)
			}
			if apiKeyHash != "" {
				h := sha256.Sum256([]byte(token))
				if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(h[:])), []byte(apiKeyHash)) == 1 {
					return next(c)
				}
			}

			return c.JSON(http.StatusUnauthorized, models.APIResponse{Status: false, Msg: "Invalid token"})
		}
	}
}

// APILogger logs admin API calls with the action name set by the handler.
func APILogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			actions, _ := c.Get("api_actions").(string)
			logger.Info("admin api",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.String("ip", c.RealIP()),
				zap.String("actions", actions),
				zap.Duration("took", time.Since(start)),
			)
			return err
		}
	}
}

// CORS configures CORS headers.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Token")
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
