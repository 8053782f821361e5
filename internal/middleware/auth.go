package middleware

import (
	"crypto/subtle"
	"errors"

	"orchestrator-api/internal/shared"

	"github.com/labstack/echo/v4"
)

// NewAPIKeyMiddleware only lets requests carrying "Bearer <key>" through.
func NewAPIKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := shared.ExtractAPIKey(c.Request().Header)
			if err == nil && (key == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) != 1) {
				err = shared.ErrUnauthorized
			}
			if err != nil {
				var re *shared.RequestError
				if !errors.As(err, &re) {
					re = shared.ErrUnauthorized
				}
				return c.JSON(re.StatusCode, shared.ErrorResponse{Code: re.StatusCode, Details: re.Err.Error()})
			}
			return next(c)
		}
	}
}
