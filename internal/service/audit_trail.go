package service

import (
	"context"

	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"go.uber.org/zap"
)

// AuditTrail пишет журнал действий. Ошибка записи не возвращается вызывающему:
// она логируется как деградация и считается в метриках.
type AuditTrail struct {
	repo    repository.AuditLogRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAuditTrail(repo repository.AuditLogRepository, m *metrics.Metrics, logger *zap.Logger) *AuditTrail {
	return &AuditTrail{
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// Append вызывается после коммита бизнес-операции
func (a *AuditTrail) Append(ctx context.Context, actor model.Actor, action model.AuditAction, entityType model.EntityType, entityID int64, detail map[string]any) {
	entry := &model.AuditLogEntry{
		ActorID:    actor.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}

	// отмена запроса не должна терять запись
	if err := a.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		a.metrics.AuditWriteFailed()
		a.logger.Warn("Audit write failed",
			zap.Bool("audit_degraded", true),
			zap.Int64("actor_id", entry.ActorID),
			zap.String("action", string(entry.Action)),
			zap.String("entity_type", string(entry.EntityType)),
			zap.Int64("entity_id", entry.EntityID),
			zap.Any("detail", entry.Detail),
			zap.Error(err),
		)
	}
}

// History записи по сущности в порядке добавления
func (a *AuditTrail) History(ctx context.Context, entityType model.EntityType, entityID int64) ([]*model.AuditLogEntry, error) {
	return a.repo.ListByEntity(ctx, entityType, entityID)
}
