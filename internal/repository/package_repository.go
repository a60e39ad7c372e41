package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type packageRepository struct {
	db base.DBTX
}

func NewPackageRepository(db base.DBTX) PackageRepository {
	return &packageRepository{db: db}
}

const packageColumns = `id, request_id, tier_sessions, sessions_used, start_date, end_date, status, created_at, updated_at`

// для запросов с JOIN, где id и status неоднозначны
const qualifiedPackageColumns = `p.id, p.request_id, p.tier_sessions, p.sessions_used, p.start_date, p.end_date, p.status, p.created_at, p.updated_at`

// Create создаёт пакет (обычно в статусе pending, окно задаётся при активации)
func (r *packageRepository) Create(ctx context.Context, pkg *model.Package) error {
	query := `
		INSERT INTO packages (request_id, tier_sessions, sessions_used, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		pkg.RequestID,
		int(pkg.TierSessions),
		pkg.SessionsUsed,
		pkg.StartDate,
		pkg.EndDate,
		pkg.Status,
	).Scan(&pkg.ID, &pkg.CreatedAt, &pkg.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create package: %w", ErrDuplicate)
		}
		return fmt.Errorf("create package: %w", err)
	}

	return nil
}

// GetByID получает пакет по ID
func (r *packageRepository) GetByID(ctx context.Context, id int64) (*model.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1`

	pkg, err := scanPackage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get package by id: %w", err)
	}

	return pkg, nil
}

func (r *packageRepository) ListByRequest(ctx context.Context, requestID int64) ([]*model.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE request_id = $1 ORDER BY created_at, id`
	return r.list(ctx, "list packages by request", query, requestID)
}

func (r *packageRepository) ListActiveByRequest(ctx context.Context, requestID int64) ([]*model.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE request_id = $1 AND status = 'active' ORDER BY id`
	return r.list(ctx, "list active packages", query, requestID)
}

// Activate переводит пакет pending -> active и задаёт окно [start, end)
func (r *packageRepository) Activate(ctx context.Context, id int64, start, end model.Date) error {
	query := `
		UPDATE packages
		SET status = 'active', start_date = $1, end_date = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`

	affected, err := base.ExecAffected(ctx, r.db, query, start, end, id)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("activate package: %w", ErrDuplicate)
		}
		return fmt.Errorf("activate package: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("package %d to active: %w", id, ErrStatusConflict)
	}

	return nil
}

// IncrementSessionsUsed одним UPDATE, без чтения в приложении: параллельные
// списания не теряются и не превышают tier_sessions
func (r *packageRepository) IncrementSessionsUsed(ctx context.Context, requestID int64) (*model.Package, error) {
	query := `
		UPDATE packages
		SET sessions_used = sessions_used + 1, updated_at = NOW()
		WHERE request_id = $1
		  AND status = 'active'
		  AND sessions_used < tier_sessions
		RETURNING ` + packageColumns

	pkg, err := scanPackage(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if base.IsNotFound(err) {
			// либо нет активного пакета, либо лимит выбран
			return nil, ErrNoEntitlement
		}
		return nil, fmt.Errorf("increment sessions used: %w", err)
	}

	return pkg, nil
}

// ExpireEnded закрывает пакеты, у которых end_date <= сегодняшней даты в поясе заявки
func (r *packageRepository) ExpireEnded(ctx context.Context, now time.Time) ([]*model.Package, error) {
	query := `
		UPDATE packages p
		SET status = 'expired', updated_at = NOW()
		FROM requests r
		WHERE p.request_id = r.id
		  AND p.status = 'active'
		  AND p.end_date <= ($1::timestamptz AT TIME ZONE COALESCE(NULLIF(r.timezone, ''), 'UTC'))::date
		RETURNING ` + qualifiedPackageColumns

	return r.list(ctx, "expire packages", query, now.UTC())
}

func (r *packageRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Package, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	packages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Package, error) {
		return scanPackage(row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return packages, nil
}

func scanPackage(row rowScanner) (*model.Package, error) {
	var (
		pkg  model.Package
		tier int
	)
	err := row.Scan(
		&pkg.ID,
		&pkg.RequestID,
		&tier,
		&pkg.SessionsUsed,
		&pkg.StartDate,
		&pkg.EndDate,
		&pkg.Status,
		&pkg.CreatedAt,
		&pkg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pkg.TierSessions = model.Tier(tier)
	return &pkg, nil
}
