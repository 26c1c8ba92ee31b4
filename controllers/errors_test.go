package controllers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Status(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrorAuthenticationRequired: http.StatusUnauthorized,
		ErrorForbidden:              http.StatusForbidden,
		ErrorRateLimited:            http.StatusTooManyRequests,
		ErrorValidationFailed:       http.StatusBadRequest,
		ErrorNotFound:               http.StatusNotFound,
		ErrorInternal:               http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, newAPIError(code, "x", nil).Status(), code)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := newAPIError(ErrorInternal, "internal error", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "api: INTERNAL_ERROR (internal error): disk full", err.Error())
	assert.Equal(t, "api: NOT_FOUND (gone)", newAPIError(ErrorNotFound, "gone", nil).Error())
}
