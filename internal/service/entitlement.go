package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
)

// EntitlementCounter списывает занятия с активного пакета заявки.
// Списание это один атомарный UPDATE в хранилище; здесь только разбор результата.
type EntitlementCounter struct{}

func NewEntitlementCounter() *EntitlementCounter {
	return &EntitlementCounter{}
}

// Increment должен вызываться внутри той же транзакции, что и смена статуса занятия
func (c *EntitlementCounter) Increment(ctx context.Context, store repository.Store, requestID int64) (*model.Package, error) {
	pkg, err := store.Packages().IncrementSessionsUsed(ctx, requestID)
	if err == nil {
		return pkg, nil
	}
	if !errors.Is(err, repository.ErrNoEntitlement) {
		return nil, fmt.Errorf("increment sessions used: %w", err)
	}

	active, err := store.Packages().ListActiveByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list active packages: %w", err)
	}
	if len(active) == 0 {
		return nil, apperrors.NoActivePackage()
	}
	return nil, apperrors.EntitlementExhausted().WithDetails(map[string]any{
		"package_id":    active[0].ID,
		"tier_sessions": int(active[0].TierSessions),
		"sessions_used": active[0].SessionsUsed,
	})
}
