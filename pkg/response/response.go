// Package response writes the uniform JSON envelope used by every endpoint.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Code    int         `json:"code"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a successful envelope with status
func Success(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{
		Code:    status,
		Success: true,
		Message: message,
		Data:    data,
	})
}

// OK writes a 200 envelope
func OK(c echo.Context, message string, data interface{}) error {
	return Success(c, http.StatusOK, message, data)
}

// Created writes a 201 envelope
func Created(c echo.Context, message string, data interface{}) error {
	return Success(c, http.StatusCreated, message, data)
}

// Fail writes a failure envelope with status
func Fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{
		Code:    status,
		Success: false,
		Message: message,
	})
}

// ErrorHandler renders errors that escape handlers (unknown routes, body
// limits, panics turned into errors) in the same envelope
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			log.Error("Unhandled error", zap.Error(err), zap.String("path", c.Request().URL.Path))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = Fail(c, status, message)
	}
}
