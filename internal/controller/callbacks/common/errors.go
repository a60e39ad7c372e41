package common

import (
	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return "❌ Произошла ошибка. Попробуйте позже."
	}

	switch appErr.Code {
	case apperrors.ErrCodeUnauthorized:
		return "❌ Пользователь не найден. Используйте /start для регистрации."
	case apperrors.ErrCodeForbidden:
		return "⛔ Недостаточно прав для этой команды."
	case apperrors.ErrCodeNotFound:
		return "❌ Не найдено: " + appErr.Message
	case apperrors.ErrCodeSessionsAlreadyGenerated:
		return "⚠️ Занятия для этого матча уже созданы."
	case apperrors.ErrCodeNoActivePackage:
		return "⚠️ У заявки нет активного пакета. Сначала подтвердите оплату."
	case apperrors.ErrCodeNoSessionsGenerated:
		return "⚠️ В окне пакета нет подходящих дней, занятия не созданы."
	case apperrors.ErrCodeEntitlementExhausted:
		return "⚠️ Все занятия пакета уже использованы."
	case apperrors.ErrCodeInvalidTransition:
		return "⚠️ Недопустимая смена статуса: " + appErr.Message
	case apperrors.ErrCodeRateLimitExceeded:
		return "⏳ Слишком много команд. Подождите минуту."
	case apperrors.ErrCodeDatabase, apperrors.ErrCodeInternal:
		return "❌ Произошла ошибка. Попробуйте позже."
	default:
		return "❌ " + appErr.Message
	}
}
