package common

import (
	"errors"
	"testing"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error hides details", errors.New("pq: connection refused"), "❌ Произошла ошибка. Попробуйте позже."},
		{"database", apperrors.Database(errors.New("boom")), "❌ Произошла ошибка. Попробуйте позже."},
		{"forbidden", apperrors.Forbidden("x"), "⛔ Недостаточно прав для этой команды."},
		{"not found", apperrors.NotFound("match"), "❌ Не найдено: match not found"},
		{"already generated", apperrors.SessionsAlreadyGenerated(), "⚠️ Занятия для этого матча уже созданы."},
		{"exhausted", apperrors.EntitlementExhausted(), "⚠️ Все занятия пакета уже использованы."},
		{"missing", apperrors.MissingRequired("meet_link"), "❌ meet_link is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorMessage(tc.err))
		})
	}
}
