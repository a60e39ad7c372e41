package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
)

type auditLogRepository struct {
	db base.DBTX
}

func NewAuditLogRepository(db base.DBTX) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Append только добавляет записи; UPDATE/DELETE для журнала не предусмотрены
func (r *auditLogRepository) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	detail := entry.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = r.db.QueryRow(
		ctx, query,
		entry.ActorID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		encoded,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}

	return nil
}

func (r *auditLogRepository) ListByEntity(ctx context.Context, entityType model.EntityType, entityID int64) ([]*model.AuditLogEntry, error) {
	query := `
		SELECT id, actor_id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditLogEntry
	for rows.Next() {
		var (
			entry  model.AuditLogEntry
			detail []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&detail,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if err := json.Unmarshal(detail, &entry.Detail); err != nil {
			return nil, fmt.Errorf("decode audit detail: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}

	return entries, nil
}
