package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorCode string

const (
	ErrorAuthenticationRequired ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrorForbidden              ErrorCode = "FORBIDDEN"
	ErrorRateLimited            ErrorCode = "RATE_LIMITED"
	ErrorValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorNotFound               ErrorCode = "NOT_FOUND"
	ErrorInternal               ErrorCode = "INTERNAL_ERROR"
)

// APIError is a failure surfaced at the HTTP boundary.
type APIError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("api: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("api: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Status maps the error code to its HTTP status.
func (e *APIError) Status() int {
	switch e.Code {
	case ErrorAuthenticationRequired:
		return http.StatusUnauthorized
	case ErrorForbidden:
		return http.StatusForbidden
	case ErrorRateLimited:
		return http.StatusTooManyRequests
	case ErrorValidationFailed:
		return http.StatusBadRequest
	case ErrorNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func newAPIError(code ErrorCode, reason string, err error) *APIError {
	return &APIError{Code: code, Reason: reason, Err: err}
}

// RespondAPIError writes {"error": reason} with the status of the error code and aborts the chain.
func RespondAPIError(c *gin.Context, err *APIError) {
	_ = c.Error(err)
	RespondError(c, err.Reason, err.Status())
	c.Abort()
}
