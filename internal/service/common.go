package service

import (
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"go.uber.org/zap"
)

// Clock источник текущего времени, подменяется в тестах
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// requireRole проверяется до любых чтений
func requireRole(actor model.Actor, roles ...model.Role) error {
	if actor.ID == 0 && !actor.HasRole(model.RoleAdmin) {
		return apperrors.Unauthorized("actor identity is required")
	}
	if !actor.HasAnyRole(roles...) {
		return apperrors.Forbidden("actor lacks the required role")
	}
	return nil
}

// storageFailure оставляет AppError как есть, остальное считает ошибкой хранилища
func storageFailure(logger *zap.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	logger.Error("Storage operation failed",
		zap.String("op", op),
		zap.String("error_class", string(apperrors.ClassStorage)),
		zap.Error(err),
	)
	return apperrors.Database(err)
}
