package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
)

type matchRepository struct {
	db base.DBTX
}

func NewMatchRepository(db base.DBTX) MatchRepository {
	return &matchRepository{db: db}
}

const matchColumns = `id, request_id, tutor_id, schedule_pattern, meet_link, status, assigned_by, created_at, updated_at`

// Create создаёт матч; на заявку допускается один матч
func (r *matchRepository) Create(ctx context.Context, match *model.Match) error {
	pattern, err := encodePattern(match.SchedulePattern)
	if err != nil {
		return fmt.Errorf("create match: %w", err)
	}

	query := `
		INSERT INTO matches (request_id, tutor_id, schedule_pattern, meet_link, status, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(
		ctx, query,
		match.RequestID,
		match.TutorID,
		pattern,
		match.MeetLink,
		match.Status,
		match.AssignedBy,
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create match: %w", ErrDuplicate)
		}
		return fmt.Errorf("create match: %w", err)
	}

	return nil
}

func (r *matchRepository) GetByID(ctx context.Context, id int64) (*model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match, err := scanMatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get match by id: %w", err)
	}

	return match, nil
}

func (r *matchRepository) GetByRequestID(ctx context.Context, requestID int64) (*model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE request_id = $1`

	match, err := scanMatch(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get match by request id: %w", err)
	}

	return match, nil
}

// ListByTutor матчи преподавателя
func (r *matchRepository) ListByTutor(ctx context.Context, tutorID int64) ([]*model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE tutor_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list matches by tutor: %w", err)
	}
	defer rows.Close()

	var matches []*model.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, match)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}

	return matches, nil
}

// UpdateStatus: смена статуса как compare-and-swap; используется и как
// защита от повторной генерации занятий (matched -> active)
func (r *matchRepository) UpdateStatus(ctx context.Context, id int64, from []model.MatchStatus, to model.MatchStatus) error {
	query := `
		UPDATE matches
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`

	affected, err := base.ExecAffected(ctx, r.db, query, to, id, toStrings(from))
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("match %d to %s: %w", id, to, ErrStatusConflict)
	}

	return nil
}

// UpdateTutor меняет преподавателя, занятия остаются привязаны к матчу
func (r *matchRepository) UpdateTutor(ctx context.Context, id, tutorID int64) error {
	query := `
		UPDATE matches
		SET tutor_id = $1, updated_at = NOW()
		WHERE id = $2 AND status <> 'ended'
	`

	affected, err := base.ExecAffected(ctx, r.db, query, tutorID, id)
	if err != nil {
		return fmt.Errorf("update match tutor: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("match %d tutor: %w", id, ErrStatusConflict)
	}

	return nil
}

func (r *matchRepository) UpdateDetails(ctx context.Context, id int64, meetLink *string, pattern *model.SchedulePattern) error {
	encoded, err := encodePattern(pattern)
	if err != nil {
		return fmt.Errorf("update match details: %w", err)
	}

	query := `
		UPDATE matches
		SET meet_link = COALESCE($1, meet_link),
		    schedule_pattern = COALESCE($2::jsonb, schedule_pattern),
		    updated_at = NOW()
		WHERE id = $3
		  AND status <> 'ended'
		  AND ($2::jsonb IS NULL OR status = 'matched')
	`

	affected, err := base.ExecAffected(ctx, r.db, query, meetLink, encoded, id)
	if err != nil {
		return fmt.Errorf("update match details: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("match %d details: %w", id, ErrStatusConflict)
	}

	return nil
}

func scanMatch(row rowScanner) (*model.Match, error) {
	var (
		match   model.Match
		pattern []byte
	)
	err := row.Scan(
		&match.ID,
		&match.RequestID,
		&match.TutorID,
		&pattern,
		&match.MeetLink,
		&match.Status,
		&match.AssignedBy,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(pattern) > 0 {
		var p model.SchedulePattern
		if err := json.Unmarshal(pattern, &p); err != nil {
			return nil, fmt.Errorf("decode schedule pattern: %w", err)
		}
		match.SchedulePattern = &p
	}

	return &match, nil
}

// encodePattern сохраняет шаблон ровно в форме {timezone, days, time, duration_mins}
func encodePattern(p *model.SchedulePattern) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	normalized := p.Normalized()
	return json.Marshal(&normalized)
}
