package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_WrappedLookup(t *testing.T) {
	base := NewInsufficientStock("item-1", "10", "4", "6", "KG")
	wrapped := fmt.Errorf("allocate line 1: %w", base)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "6", appErr.Details["shortfall"])
	assert.Equal(t, "KG", appErr.Details["unit"])
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(wrapped))
	assert.True(t, HasCode(wrapped, CodeInsufficientStock))
}

func TestAppError_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
	}{
		{"validation", NewValidation("bad"), http.StatusBadRequest, CodeValidation},
		{"unsupported unit", NewUnsupportedUnit("i", "BOX"), http.StatusBadRequest, CodeUnsupportedUnit},
		{"invalid batch", NewInvalidBatch("b", BatchExpired), http.StatusBadRequest, CodeInvalidBatch},
		{"forbidden", NewForbidden("no"), http.StatusForbidden, CodeForbidden},
		{"not found", NewNotFound("approval", "x"), http.StatusNotFound, CodeNotFound},
		{"already processed", NewAlreadyProcessed("approval", "x", "APPROVED"), http.StatusConflict, CodeAlreadyProcessed},
		{"internal", NewInternal(errors.New("boom")), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestGetHTTPStatus_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("db down")))
	assert.False(t, IsNotFound(errors.New("db down")))
}

func TestInternal_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewInternal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
