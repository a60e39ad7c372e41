package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "match not found")
		assert.Equal(t, "NOT_FOUND: match not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Database(cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details", func(t *testing.T) {
		err := ValidationError("bad pattern").WithDetails(map[string]int{"day": 9})
		assert.Equal(t, map[string]int{"day": 9}, err.Details)
	})
}

func TestClass(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want Class
	}{
		{"forbidden", Forbidden("x"), ClassAuthorization},
		{"unauthorized", Unauthorized("x"), ClassAuthorization},
		{"already generated", SessionsAlreadyGenerated(), ClassPrecondition},
		{"no active package", NoActivePackage(), ClassPrecondition},
		{"no sessions", NoSessionsGenerated(), ClassPrecondition},
		{"exhausted", EntitlementExhausted(), ClassPrecondition},
		{"missing", MissingRequired("meet_link"), ClassPrecondition},
		{"transition", InvalidTransition("session", "done", "rescheduled"), ClassPrecondition},
		{"database", Database(errors.New("boom")), ClassStorage},
		{"internal", Internal("x"), ClassStorage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Class())
		})
	}
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("generate sessions: %w", NoActivePackage())

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNoActivePackage, appErr.Code)
	assert.Equal(t, ErrCodeNoActivePackage, GetCode(wrapped))
	assert.Equal(t, ClassPrecondition, ClassOf(wrapped))
}

func TestPlainErrorIsStorageClass(t *testing.T) {
	err := errors.New("plain")
	assert.False(t, IsAppError(err))
	assert.Equal(t, ErrCodeInternal, GetCode(err))
	assert.Equal(t, ClassStorage, ClassOf(err))
}
