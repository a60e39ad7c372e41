// Package memstore хранит все сущности в памяти процесса. Используется в тестах
// и при STORAGE_DRIVER=memory; транзакции эмулируются мьютексом и снимком состояния.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"github.com/google/uuid"
)

type state struct {
	txMu sync.Mutex // один писатель-транзакция за раз
	mu   sync.Mutex

	now func() time.Time
	seq int64

	users       map[int64]model.User
	requests    map[int64]model.Request
	packages    map[int64]model.Package
	payments    map[int64]model.Payment
	matches     map[int64]model.Match
	generations map[uuid.UUID]model.SessionGeneration
	sessions    map[int64]model.Session
	auditLogs   []model.AuditLogEntry
}

type snapshot struct {
	seq         int64
	users       map[int64]model.User
	requests    map[int64]model.Request
	packages    map[int64]model.Package
	payments    map[int64]model.Payment
	matches     map[int64]model.Match
	generations map[uuid.UUID]model.SessionGeneration
	sessions    map[int64]model.Session
	auditLogs   []model.AuditLogEntry
}

// Store реализует repository.Store
type Store struct {
	*state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

// Option настраивает Store
type Option func(*state)

// WithClock подменяет источник времени для created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *state) { s.now = now }
}

func New(opts ...Option) *Store {
	st := &state{
		now:         time.Now,
		users:       make(map[int64]model.User),
		requests:    make(map[int64]model.Request),
		packages:    make(map[int64]model.Package),
		payments:    make(map[int64]model.Payment),
		matches:     make(map[int64]model.Match),
		generations: make(map[uuid.UUID]model.SessionGeneration),
		sessions:    make(map[int64]model.Session),
	}
	for _, opt := range opts {
		opt(st)
	}
	return &Store{state: st}
}

func (s *Store) Users() repository.UserRepository         { return userRepo{s} }
func (s *Store) Requests() repository.RequestRepository   { return requestRepo{s} }
func (s *Store) Packages() repository.PackageRepository   { return packageRepo{s} }
func (s *Store) Payments() repository.PaymentRepository   { return paymentRepo{s} }
func (s *Store) Matches() repository.MatchRepository      { return matchRepo{s} }
func (s *Store) Sessions() repository.SessionRepository   { return sessionRepo{s} }
func (s *Store) AuditLogs() repository.AuditLogRepository { return auditRepo{s} }

// WithinTx выполняет fn под транзакционным мьютексом; при ошибке состояние
// возвращается к снимку, сделанному до fn
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(&Store{state: s.state, inTx: true}); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}

	return nil
}

// lock берёт транзакционный мьютекс для одиночных операций вне транзакции,
// чтобы они не перемешивались с чужой транзакцией и её откатом
func (s *Store) lock() func() {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) snapshot() snapshot {
	return snapshot{
		seq:         s.seq,
		users:       maps.Clone(s.users),
		requests:    maps.Clone(s.requests),
		packages:    maps.Clone(s.packages),
		payments:    maps.Clone(s.payments),
		matches:     maps.Clone(s.matches),
		generations: maps.Clone(s.generations),
		sessions:    maps.Clone(s.sessions),
		auditLogs:   append([]model.AuditLogEntry(nil), s.auditLogs...),
	}
}

func (s *state) restore(snap snapshot) {
	s.seq = snap.seq
	s.users = snap.users
	s.requests = snap.requests
	s.packages = snap.packages
	s.payments = snap.payments
	s.matches = snap.matches
	s.generations = snap.generations
	s.sessions = snap.sessions
	s.auditLogs = snap.auditLogs
}

func in[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
