// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint: the error
// envelope, fail() for explicit errors, failErr() which classifies service
// and store errors, and small success helpers.
//
// Example error response:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "storage_unavailable",
//	  "message": "temporarily unavailable, try again"
//	}
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// fail aborts the request with a structured error. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	middleware.CountRejection(code)
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail() for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps an error returned by a service to its HTTP response. Errors
// it does not recognize become a logged 500 without leaking their text.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRecipient):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidRecipient, "receiver does not exist")
	case errors.Is(err, services.ErrSelfMessage),
		errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrContentTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidUsername):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "username must be 3-30 characters of a-z, 0-9 or _")
	case errors.Is(err, services.ErrWeakPassword):
		fail(c, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("password must be at least %d characters", services.MinPasswordRunes))
	case errors.Is(err, store.ErrUsernameTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, "username already taken")
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, store.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, store.ErrStorageUnavailable):
		middleware.LoggerFrom(c).Warn().Err(err).Msg("storage unavailable")
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "temporarily unavailable, try again")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// failBind reports a request body that failed binding or validation.
func failBind(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, ErrCodeValidation, middleware.DescribeBindError(err))
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
