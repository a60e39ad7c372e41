package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
)

var (
	// ErrStatusConflict строка не в ожидаемом статусе (или не существует)
	ErrStatusConflict = errors.New("status conflict")
	// ErrDuplicate нарушено ограничение уникальности
	ErrDuplicate = errors.New("duplicate")
	// ErrNoEntitlement нет активного пакета с остатком занятий
	ErrNoEntitlement = errors.New("no entitlement left")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	SetRoles(ctx context.Context, id int64, roles []model.Role) error
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	GetByID(ctx context.Context, id int64) (*model.Request, error)
	ListByStatus(ctx context.Context, status model.RequestStatus) ([]*model.Request, error)
	// UpdateStatus переводит заявку в to, только если текущий статус входит в from
	UpdateStatus(ctx context.Context, id int64, from []model.RequestStatus, to model.RequestStatus) error
}

type PackageRepository interface {
	Create(ctx context.Context, pkg *model.Package) error
	GetByID(ctx context.Context, id int64) (*model.Package, error)
	ListByRequest(ctx context.Context, requestID int64) ([]*model.Package, error)
	ListActiveByRequest(ctx context.Context, requestID int64) ([]*model.Package, error)
	Activate(ctx context.Context, id int64, start, end model.Date) error
	// IncrementSessionsUsed атомарно списывает одно занятие с активного пакета заявки
	IncrementSessionsUsed(ctx context.Context, requestID int64) (*model.Package, error)
	// ExpireEnded переводит в expired активные пакеты, окно которых закончилось к now
	// (дата считается в часовом поясе заявки)
	ExpireEnded(ctx context.Context, now time.Time) ([]*model.Package, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id int64) (*model.Payment, error)
	GetByPackageID(ctx context.Context, packageID int64) (*model.Payment, error)
	MarkPaid(ctx context.Context, id, verifiedBy int64, at time.Time) error
	Reject(ctx context.Context, id, verifiedBy int64, at time.Time) error
}

type MatchRepository interface {
	Create(ctx context.Context, match *model.Match) error
	GetByID(ctx context.Context, id int64) (*model.Match, error)
	GetByRequestID(ctx context.Context, requestID int64) (*model.Match, error)
	ListByTutor(ctx context.Context, tutorID int64) ([]*model.Match, error)
	UpdateStatus(ctx context.Context, id int64, from []model.MatchStatus, to model.MatchStatus) error
	UpdateTutor(ctx context.Context, id, tutorID int64) error
	// UpdateDetails меняет только переданные (не nil) поля.
	// Шаблон расписания принимается только в статусе matched, иначе ErrStatusConflict
	UpdateDetails(ctx context.Context, id int64, meetLink *string, pattern *model.SchedulePattern) error
}

type SessionRepository interface {
	CreateGeneration(ctx context.Context, gen *model.SessionGeneration) error
	GetGeneration(ctx context.Context, matchID int64) (*model.SessionGeneration, error)
	CreateBatch(ctx context.Context, sessions []*model.Session) error
	CountByMatch(ctx context.Context, matchID int64) (int, error)
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	ListByMatch(ctx context.Context, matchID int64) ([]*model.Session, error)
	UpdateStatus(ctx context.Context, id int64, from []model.SessionStatus, to model.SessionStatus, notes *string) error
	Reschedule(ctx context.Context, id int64, from []model.SessionStatus, start, end time.Time) error
}

type AuditLogRepository interface {
	Append(ctx context.Context, entry *model.AuditLogEntry) error
	ListByEntity(ctx context.Context, entityType model.EntityType, entityID int64) ([]*model.AuditLogEntry, error)
}

// Store даёт доступ к репозиториям и транзакциям
type Store interface {
	Users() UserRepository
	Requests() RequestRepository
	Packages() PackageRepository
	Payments() PaymentRepository
	Matches() MatchRepository
	Sessions() SessionRepository
	AuditLogs() AuditLogRepository

	// WithinTx выполняет fn в одной транзакции; ошибка fn откатывает все записи.
	// Вложенный вызов использует уже открытую транзакцию.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
