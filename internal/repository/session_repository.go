package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type sessionRepository struct {
	db base.DBTX
}

func NewSessionRepository(db base.DBTX) SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `id, match_id, generation_id, scheduled_start_utc, scheduled_end_utc, status, notes, created_at, updated_at`

// CreateGeneration фиксирует единственную генерацию занятий матча.
// Повторная вставка для того же match_id падает на UNIQUE.
func (r *sessionRepository) CreateGeneration(ctx context.Context, gen *model.SessionGeneration) error {
	query := `
		INSERT INTO session_generations (id, match_id, session_count, range_start, range_end, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		gen.ID,
		gen.MatchID,
		gen.SessionCount,
		gen.RangeStart,
		gen.RangeEnd,
		gen.CreatedBy,
	).Scan(&gen.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create session generation: %w", ErrDuplicate)
		}
		return fmt.Errorf("create session generation: %w", err)
	}

	return nil
}

func (r *sessionRepository) GetGeneration(ctx context.Context, matchID int64) (*model.SessionGeneration, error) {
	query := `
		SELECT id, match_id, session_count, range_start, range_end, created_by, created_at
		FROM session_generations
		WHERE match_id = $1
	`

	var gen model.SessionGeneration
	err := r.db.QueryRow(ctx, query, matchID).Scan(
		&gen.ID,
		&gen.MatchID,
		&gen.SessionCount,
		&gen.RangeStart,
		&gen.RangeEnd,
		&gen.CreatedBy,
		&gen.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session generation: %w", err)
	}

	return &gen, nil
}

// CreateBatch вставляет все занятия одной пачкой запросов
func (r *sessionRepository) CreateBatch(ctx context.Context, sessions []*model.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	query := `
		INSERT INTO sessions (match_id, generation_id, scheduled_start_utc, scheduled_end_utc, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	batch := &pgx.Batch{}
	for _, s := range sessions {
		batch.Queue(query, s.MatchID, s.GenerationID, s.ScheduledStartUTC, s.ScheduledEndUTC, s.Status, s.Notes)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i, s := range sessions {
		if err := results.QueryRow().Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return fmt.Errorf("create session %d of %d: %w", i+1, len(sessions), err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("close session batch: %w", err)
	}

	return nil
}

func (r *sessionRepository) CountByMatch(ctx context.Context, matchID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE match_id = $1`, matchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

// ListByMatch занятия матча по времени начала
func (r *sessionRepository) ListByMatch(ctx context.Context, matchID int64) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE match_id = $1 ORDER BY scheduled_start_utc, id`

	rows, err := r.db.Query(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, nil
}

// UpdateStatus меняет статус, только если текущий входит в from; notes == nil оставляет заметку
func (r *sessionRepository) UpdateStatus(ctx context.Context, id int64, from []model.SessionStatus, to model.SessionStatus, notes *string) error {
	query := `
		UPDATE sessions
		SET status = $1, notes = COALESCE($2, notes), updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`

	affected, err := base.ExecAffected(ctx, r.db, query, to, notes, id, toStrings(from))
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("session %d to %s: %w", id, to, ErrStatusConflict)
	}

	return nil
}

// Reschedule переписывает время существующего занятия, новая строка не создаётся
func (r *sessionRepository) Reschedule(ctx context.Context, id int64, from []model.SessionStatus, start, end time.Time) error {
	query := `
		UPDATE sessions
		SET status = 'rescheduled', scheduled_start_utc = $1, scheduled_end_utc = $2, updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`

	affected, err := base.ExecAffected(ctx, r.db, query, start.UTC(), end.UTC(), id, toStrings(from))
	if err != nil {
		return fmt.Errorf("reschedule session: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("session %d reschedule: %w", id, ErrStatusConflict)
	}

	return nil
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.MatchID,
		&s.GenerationID,
		&s.ScheduledStartUTC,
		&s.ScheduledEndUTC,
		&s.Status,
		&s.Notes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ScheduledStartUTC = s.ScheduledStartUTC.UTC()
	s.ScheduledEndUTC = s.ScheduledEndUTC.UTC()
	return &s, nil
}
