package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"github.com/Freeeeeet/tutorflow/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultLateRescheduleWindow = 24 * time.Hour

// LedgerConfig настройки SessionLedger
type LedgerConfig struct {
	// LateRescheduleWindow перенос на время ближе этого окна помечается как поздний
	LateRescheduleWindow time.Duration
	Clock                Clock
}

// SessionLedger ведёт статусы занятий и списание занятий из пакета
type SessionLedger struct {
	store      repository.Store
	counter    *EntitlementCounter
	audit      *AuditTrail
	metrics    *metrics.Metrics
	logger     *zap.Logger
	lateWindow time.Duration
	clock      Clock
}

func NewSessionLedger(
	store repository.Store,
	counter *EntitlementCounter,
	audit *AuditTrail,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg LedgerConfig,
) *SessionLedger {
	lateWindow := cfg.LateRescheduleWindow
	if lateWindow <= 0 {
		lateWindow = DefaultLateRescheduleWindow
	}
	return &SessionLedger{
		store:      store,
		counter:    counter,
		audit:      audit,
		metrics:    m,
		logger:     logger,
		lateWindow: lateWindow,
		clock:      cfg.Clock,
	}
}

// StatusUpdateResult результат смены статуса; Package заполнен только при списании
type StatusUpdateResult struct {
	Session *model.Session `json:"session"`
	Package *model.Package `json:"package,omitempty"`
}

// RescheduleResult LateReschedule сообщает вызывающему о позднем переносе, сам перенос не блокируется
type RescheduleResult struct {
	Session        *model.Session `json:"session"`
	LateReschedule bool           `json:"late_reschedule"`
}

// UpdateStatus переводит занятие в новый статус. Для done и no_show_student
// в той же транзакции ровно один раз списывается занятие из активного пакета заявки.
func (l *SessionLedger) UpdateStatus(ctx context.Context, actor model.Actor, sessionID, requestID int64, status model.SessionStatus, notes *string) (*StatusUpdateResult, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleTutor); err != nil {
		return nil, err
	}
	if status == model.SessionStatusScheduled || len(status.SourcesOf()) == 0 {
		return nil, apperrors.InvalidInput("status", fmt.Sprintf("%q is not a valid target", status))
	}

	session, match, err := l.loadOwned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if match.RequestID != requestID {
		return nil, apperrors.NotFound("session")
	}
	if !session.Status.CanTransitionTo(status) {
		return nil, apperrors.InvalidTransition("session", string(session.Status), string(status))
	}

	var pkg *model.Package
	err = l.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Sessions().UpdateStatus(ctx, sessionID, status.SourcesOf(), status, notes); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				// статус успели поменять параллельно
				return apperrors.InvalidTransition("session", string(session.Status), string(status)).WithCause(err)
			}
			return fmt.Errorf("update session status: %w", err)
		}

		if status.Consumes() {
			consumed, err := l.counter.Increment(ctx, tx, requestID)
			if err != nil {
				return err
			}
			pkg = consumed
		}
		return nil
	})
	if err != nil {
		return nil, storageFailure(l.logger, "update session status", err)
	}

	updated, err := l.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, storageFailure(l.logger, "reload session", err)
	}

	l.metrics.SessionTransition(string(status))
	detail := map[string]any{
		"match_id":   match.ID,
		"request_id": requestID,
		"from":       string(session.Status),
		"to":         string(status),
	}
	if notes != nil {
		detail["notes"] = *notes
	}
	if pkg != nil {
		l.metrics.EntitlementConsumed()
		detail["package_id"] = pkg.ID
		detail["sessions_used"] = pkg.SessionsUsed
		detail["tier_sessions"] = int(pkg.TierSessions)
	}
	l.audit.Append(ctx, actor, model.AuditSessionStatus, model.EntitySession, sessionID, detail)

	l.logger.Info("Session status updated",
		zap.Int64("session_id", sessionID),
		zap.Int64("match_id", match.ID),
		zap.String("from", string(session.Status)),
		zap.String("to", string(status)),
		zap.Bool("consumed", pkg != nil),
		zap.Int64("actor_id", actor.ID),
	)

	return &StatusUpdateResult{Session: updated, Package: pkg}, nil
}

// Reschedule переносит занятие: статус rescheduled, время перезаписывается в той же строке.
// Пакет не затрагивается.
func (l *SessionLedger) Reschedule(ctx context.Context, actor model.Actor, sessionID int64, newStartUTC, newEndUTC time.Time, reason string) (*RescheduleResult, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleTutor); err != nil {
		return nil, err
	}
	if newStartUTC.IsZero() || newEndUTC.IsZero() {
		return nil, apperrors.MissingRequired("new start and end")
	}
	if !newEndUTC.After(newStartUTC) {
		return nil, apperrors.InvalidInput("end", "must be after start")
	}

	session, match, err := l.loadOwned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(model.SessionStatusRescheduled) {
		return nil, apperrors.InvalidTransition("session", string(session.Status), string(model.SessionStatusRescheduled))
	}

	from := model.SessionStatusRescheduled.SourcesOf()
	if err := l.store.Sessions().Reschedule(ctx, sessionID, from, newStartUTC, newEndUTC); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperrors.InvalidTransition("session", string(session.Status), string(model.SessionStatusRescheduled)).WithCause(err)
		}
		return nil, storageFailure(l.logger, "reschedule session", err)
	}

	updated, err := l.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, storageFailure(l.logger, "reload session", err)
	}

	late := newStartUTC.Before(l.clock.now().Add(l.lateWindow))
	if late {
		l.metrics.LateReschedule()
	}
	l.metrics.SessionTransition(string(model.SessionStatusRescheduled))

	l.audit.Append(ctx, actor, model.AuditSessionRescheduled, model.EntitySession, sessionID, map[string]any{
		"match_id":        match.ID,
		"from":            string(session.Status),
		"old_start_utc":   session.ScheduledStartUTC,
		"old_end_utc":     session.ScheduledEndUTC,
		"new_start_utc":   newStartUTC.UTC(),
		"new_end_utc":     newEndUTC.UTC(),
		"reason":          reason,
		"late_reschedule": late,
	})

	l.logger.Info("Session rescheduled",
		zap.Int64("session_id", sessionID),
		zap.Time("new_start", newStartUTC.UTC()),
		zap.Bool("late", late),
		zap.Int64("actor_id", actor.ID),
	)

	return &RescheduleResult{Session: updated, LateReschedule: late}, nil
}

// Get занятие по ID с проверкой доступа
func (l *SessionLedger) Get(ctx context.Context, actor model.Actor, sessionID int64) (*model.Session, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleTutor); err != nil {
		return nil, err
	}
	session, _, err := l.loadOwned(ctx, actor, sessionID)
	return session, err
}

// ListByMatch занятия матча по времени; преподаватель видит только свои матчи
func (l *SessionLedger) ListByMatch(ctx context.Context, actor model.Actor, matchID int64) ([]*model.Session, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleTutor); err != nil {
		return nil, err
	}

	match, err := l.store.Matches().GetByID(ctx, matchID)
	if err != nil {
		return nil, storageFailure(l.logger, "get match", err)
	}
	if match == nil {
		return nil, apperrors.NotFound("match")
	}
	if !actor.HasRole(model.RoleAdmin) && match.TutorID != actor.ID {
		return nil, apperrors.Forbidden("match belongs to another tutor")
	}

	sessions, err := l.store.Sessions().ListByMatch(ctx, matchID)
	if err != nil {
		return nil, storageFailure(l.logger, "list sessions", err)
	}
	return sessions, nil
}

// populate сохраняет сгенерированные занятия в открытой транзакции.
// Вызывается только из EngagementService.GenerateSessions.
func (l *SessionLedger) populate(ctx context.Context, tx repository.Store, matchID int64, generationID uuid.UUID, slots []schedule.Slot) ([]*model.Session, error) {
	sessions := make([]*model.Session, 0, len(slots))
	for _, slot := range slots {
		sessions = append(sessions, &model.Session{
			MatchID:           matchID,
			GenerationID:      generationID,
			ScheduledStartUTC: slot.Start,
			ScheduledEndUTC:   slot.End,
			Status:            model.SessionStatusScheduled,
		})
	}

	if err := tx.Sessions().CreateBatch(ctx, sessions); err != nil {
		return nil, fmt.Errorf("create sessions: %w", err)
	}
	return sessions, nil
}

// loadOwned загружает занятие и матч; преподаватель может работать только со своими матчами
func (l *SessionLedger) loadOwned(ctx context.Context, actor model.Actor, sessionID int64) (*model.Session, *model.Match, error) {
	session, err := l.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, storageFailure(l.logger, "get session", err)
	}
	if session == nil {
		return nil, nil, apperrors.NotFound("session")
	}

	match, err := l.store.Matches().GetByID(ctx, session.MatchID)
	if err != nil {
		return nil, nil, storageFailure(l.logger, "get match", err)
	}
	if match == nil {
		return nil, nil, apperrors.NotFound("match")
	}

	if !actor.HasRole(model.RoleAdmin) && match.TutorID != actor.ID {
		return nil, nil, apperrors.Forbidden("session belongs to another tutor")
	}
	return session, match, nil
}
