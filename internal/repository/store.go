package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorflow/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore реализация Store поверх pgxpool
type PgStore struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
	db   base.DBTX
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Users() UserRepository         { return NewUserRepository(s.db) }
func (s *PgStore) Requests() RequestRepository   { return NewRequestRepository(s.db) }
func (s *PgStore) Packages() PackageRepository   { return NewPackageRepository(s.db) }
func (s *PgStore) Payments() PaymentRepository   { return NewPaymentRepository(s.db) }
func (s *PgStore) Matches() MatchRepository      { return NewMatchRepository(s.db) }
func (s *PgStore) Sessions() SessionRepository   { return NewSessionRepository(s.db) }
func (s *PgStore) AuditLogs() AuditLogRepository { return NewAuditLogRepository(s.db) }

// WithinTx открывает транзакцию, откатывает её при ошибке fn
func (s *PgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op после Commit

	if err := fn(&PgStore{pool: s.pool, tx: tx, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
