package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
)

type requestRepository struct {
	db base.DBTX
}

func NewRequestRepository(db base.DBTX) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id, requester_id, subject, level, timezone, availability, status, created_at, updated_at`

// Create создаёт заявку
func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	query := `
		INSERT INTO requests (requester_id, subject, level, timezone, availability, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		req.RequesterID,
		req.Subject,
		req.Level,
		req.Timezone,
		req.Availability,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *requestRepository) GetByID(ctx context.Context, id int64) (*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request by id: %w", err)
	}

	return req, nil
}

// ListByStatus возвращает заявки в статусе, старые первыми
func (r *requestRepository) ListByStatus(ctx context.Context, status model.RequestStatus) ([]*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE status = $1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list requests by status: %w", err)
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}

	return requests, nil
}

// UpdateStatus переводит статус заявки с проверкой текущего
func (r *requestRepository) UpdateStatus(ctx context.Context, id int64, from []model.RequestStatus, to model.RequestStatus) error {
	query := `
		UPDATE requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`

	affected, err := base.ExecAffected(ctx, r.db, query, to, id, toStrings(from))
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("request %d to %s: %w", id, to, ErrStatusConflict)
	}

	return nil
}

func scanRequest(row rowScanner) (*model.Request, error) {
	var req model.Request
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.Subject,
		&req.Level,
		&req.Timezone,
		&req.Availability,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
