package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"github.com/Freeeeeet/tutorflow/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultPackageWindowDays = 30

// EngagementConfig настройки EngagementService
type EngagementConfig struct {
	// PackageWindowDays длина окна пакета в днях, считая от дня подтверждения оплаты
	PackageWindowDays int
	Clock             Clock
}

// EngagementService связывает переходы заявки, пакета, оплаты и матча
type EngagementService struct {
	store      repository.Store
	ledger     *SessionLedger
	audit      *AuditTrail
	metrics    *metrics.Metrics
	logger     *zap.Logger
	windowDays int
	clock      Clock
}

func NewEngagementService(
	store repository.Store,
	ledger *SessionLedger,
	audit *AuditTrail,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg EngagementConfig,
) *EngagementService {
	windowDays := cfg.PackageWindowDays
	if windowDays <= 0 {
		windowDays = DefaultPackageWindowDays
	}
	return &EngagementService{
		store:      store,
		ledger:     ledger,
		audit:      audit,
		metrics:    m,
		logger:     logger,
		windowDays: windowDays,
		clock:      cfg.Clock,
	}
}

// CreateRequestInput данные новой заявки
type CreateRequestInput struct {
	// RequesterID учитывается только для администратора; иначе заявитель это сам actor
	RequesterID  int64  `json:"requester_id"`
	Subject      string `json:"subject"`
	Level        string `json:"level"`
	Timezone     string `json:"timezone"`
	Availability string `json:"availability"`
}

// CreateRequest создаёт заявку в статусе new
func (s *EngagementService) CreateRequest(ctx context.Context, actor model.Actor, in CreateRequestInput) (*model.Request, error) {
	if err := requireRole(actor, model.RoleStudent, model.RoleParent, model.RoleAdmin); err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, apperrors.MissingRequired("subject")
	}
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, apperrors.InvalidInput("timezone", err.Error())
	}

	requesterID := actor.ID
	if actor.HasRole(model.RoleAdmin) && in.RequesterID != 0 {
		requesterID = in.RequesterID
	}

	req := &model.Request{
		RequesterID:  requesterID,
		Subject:      subject,
		Level:        strings.TrimSpace(in.Level),
		Timezone:     tz,
		Availability: strings.TrimSpace(in.Availability),
		Status:       model.RequestStatusNew,
	}
	if err := s.store.Requests().Create(ctx, req); err != nil {
		return nil, storageFailure(s.logger, "create request", err)
	}

	s.audit.Append(ctx, actor, model.AuditRequestCreated, model.EntityRequest, req.ID, map[string]any{
		"requester_id": requesterID,
		"subject":      subject,
	})

	s.logger.Info("Request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("requester_id", requesterID),
	)

	return req, nil
}

// RecordPaymentInput заявленная оплата пакета
type RecordPaymentInput struct {
	RequestID   int64  `json:"request_id"`
	Tier        int    `json:"tier"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
}

// PaymentRecord созданные пакет и оплата
type PaymentRecord struct {
	Package *model.Package `json:"package"`
	Payment *model.Payment `json:"payment"`
}

// RecordPayment создаёт пакет и оплату в pending, заявка new -> payment_pending
func (s *EngagementService) RecordPayment(ctx context.Context, actor model.Actor, in RecordPaymentInput) (*PaymentRecord, error) {
	if err := requireRole(actor, model.RoleStudent, model.RoleParent, model.RoleAdmin); err != nil {
		return nil, err
	}

	tier, err := model.ParseTier(in.Tier)
	if err != nil {
		return nil, apperrors.InvalidInput("tier", err.Error())
	}
	if in.AmountCents < 0 {
		return nil, apperrors.InvalidInput("amount_cents", "must not be negative")
	}

	req, err := s.getRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(model.RoleAdmin) && req.RequesterID != actor.ID {
		return nil, apperrors.Forbidden("request belongs to another requester")
	}
	if !req.Status.CanTransitionTo(model.RequestStatusPaymentPending) {
		return nil, apperrors.InvalidTransition("request", string(req.Status), string(model.RequestStatusPaymentPending))
	}

	record := &PaymentRecord{
		Package: &model.Package{
			RequestID:    req.ID,
			TierSessions: tier,
			Status:       model.PackageStatusPending,
		},
	}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Packages().Create(ctx, record.Package); err != nil {
			return fmt.Errorf("create package: %w", err)
		}

		record.Payment = &model.Payment{
			PackageID:   record.Package.ID,
			AmountCents: in.AmountCents,
			Reference:   strings.TrimSpace(in.Reference),
			Status:      model.PaymentStatusPending,
		}
		if err := tx.Payments().Create(ctx, record.Payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		return s.advanceRequest(ctx, tx, req, model.RequestStatusPaymentPending)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "record payment", err)
	}

	s.audit.Append(ctx, actor, model.AuditPaymentRecorded, model.EntityPayment, record.Payment.ID, map[string]any{
		"request_id":   req.ID,
		"package_id":   record.Package.ID,
		"tier":         int(tier),
		"amount_cents": in.AmountCents,
	})

	s.logger.Info("Payment recorded",
		zap.Int64("request_id", req.ID),
		zap.Int64("payment_id", record.Payment.ID),
		zap.Int("tier", int(tier)),
	)

	return record, nil
}

// VerifyPayment подтверждает оплату: оплата paid, пакет pending -> active с окном
// от сегодняшнего дня в поясе заявки, заявка payment_pending -> ready_to_match.
// Все три записи в одной транзакции, статус заявки последним.
func (s *EngagementService) VerifyPayment(ctx context.Context, actor model.Actor, paymentID int64) (*model.Package, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}

	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, storageFailure(s.logger, "get payment", err)
	}
	if payment == nil {
		return nil, apperrors.NotFound("payment")
	}
	if !payment.Status.CanTransitionTo(model.PaymentStatusPaid) {
		return nil, apperrors.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusPaid))
	}

	pkg, err := s.store.Packages().GetByID(ctx, payment.PackageID)
	if err != nil {
		return nil, storageFailure(s.logger, "get package", err)
	}
	if pkg == nil {
		return nil, apperrors.NotFound("package")
	}
	req, err := s.getRequest(ctx, pkg.RequestID)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	start := model.DateOf(now.In(req.Location()))
	end := start.AddDays(s.windowDays)

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Payments().MarkPaid(ctx, payment.ID, actor.ID, now); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperrors.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusPaid)).WithCause(err)
			}
			return fmt.Errorf("mark payment paid: %w", err)
		}

		if err := tx.Packages().Activate(ctx, pkg.ID, start, end); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicate):
				return apperrors.Conflict("request already has an active package").WithCause(err)
			case errors.Is(err, repository.ErrStatusConflict):
				return apperrors.InvalidTransition("package", string(pkg.Status), string(model.PackageStatusActive)).WithCause(err)
			}
			return fmt.Errorf("activate package: %w", err)
		}

		return s.advanceRequest(ctx, tx, req, model.RequestStatusReadyToMatch)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "verify payment", err)
	}

	activated, err := s.store.Packages().GetByID(ctx, pkg.ID)
	if err != nil {
		return nil, storageFailure(s.logger, "reload package", err)
	}

	s.audit.Append(ctx, actor, model.AuditPaymentVerified, model.EntityPayment, payment.ID, map[string]any{
		"request_id": req.ID,
		"package_id": pkg.ID,
		"start_date": start.String(),
		"end_date":   end.String(),
	})

	s.logger.Info("Payment verified",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("package_id", pkg.ID),
		zap.Int64("request_id", req.ID),
		zap.Stringer("start_date", start),
		zap.Stringer("end_date", end),
	)

	return activated, nil
}

// RejectPayment отклоняет оплату; заявка возвращается в new и может быть оплачена заново
func (s *EngagementService) RejectPayment(ctx context.Context, actor model.Actor, paymentID int64, reason string) error {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return err
	}

	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return storageFailure(s.logger, "get payment", err)
	}
	if payment == nil {
		return apperrors.NotFound("payment")
	}
	if !payment.Status.CanTransitionTo(model.PaymentStatusRejected) {
		return apperrors.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusRejected))
	}

	pkg, err := s.store.Packages().GetByID(ctx, payment.PackageID)
	if err != nil {
		return storageFailure(s.logger, "get package", err)
	}
	if pkg == nil {
		return apperrors.NotFound("package")
	}
	req, err := s.getRequest(ctx, pkg.RequestID)
	if err != nil {
		return err
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Payments().Reject(ctx, payment.ID, actor.ID, s.clock.now()); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperrors.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusRejected)).WithCause(err)
			}
			return fmt.Errorf("reject payment: %w", err)
		}
		return s.advanceRequest(ctx, tx, req, model.RequestStatusNew)
	})
	if err != nil {
		return storageFailure(s.logger, "reject payment", err)
	}

	s.audit.Append(ctx, actor, model.AuditPaymentRejected, model.EntityPayment, payment.ID, map[string]any{
		"request_id": req.ID,
		"package_id": pkg.ID,
		"reason":     reason,
	})

	s.logger.Info("Payment rejected",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("request_id", req.ID),
	)

	return nil
}

// AssignTutorInput назначение преподавателя; ссылка и шаблон могут прийти позже через UpdateMatchDetails
type AssignTutorInput struct {
	RequestID       int64                  `json:"request_id"`
	TutorID         int64                  `json:"tutor_id"`
	MeetLink        *string                `json:"meet_link,omitempty"`
	SchedulePattern *model.SchedulePattern `json:"schedule_pattern,omitempty"`
}

// AssignTutor создаёт матч в статусе matched, заявка ready_to_match -> matched
func (s *EngagementService) AssignTutor(ctx context.Context, actor model.Actor, in AssignTutorInput) (int64, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return 0, err
	}
	meetLink, err := normalizeMeetLink(in.MeetLink)
	if err != nil {
		return 0, err
	}
	if in.SchedulePattern != nil {
		if err := in.SchedulePattern.Validate(); err != nil {
			return 0, apperrors.InvalidInput("schedule_pattern", err.Error())
		}
	}

	req, err := s.getRequest(ctx, in.RequestID)
	if err != nil {
		return 0, err
	}
	if req.Status != model.RequestStatusReadyToMatch {
		return 0, apperrors.InvalidTransition("request", string(req.Status), string(model.RequestStatusMatched))
	}
	if err := s.requireTutor(ctx, in.TutorID); err != nil {
		return 0, err
	}

	match := &model.Match{
		RequestID:       req.ID,
		TutorID:         in.TutorID,
		SchedulePattern: in.SchedulePattern,
		MeetLink:        meetLink,
		Status:          model.MatchStatusMatched,
		AssignedBy:      actor.ID,
	}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Matches().Create(ctx, match); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.Conflict("request already has a match").WithCause(err)
			}
			return fmt.Errorf("create match: %w", err)
		}
		return s.advanceRequest(ctx, tx, req, model.RequestStatusMatched)
	})
	if err != nil {
		return 0, storageFailure(s.logger, "assign tutor", err)
	}

	s.audit.Append(ctx, actor, model.AuditTutorAssigned, model.EntityMatch, match.ID, map[string]any{
		"request_id":  req.ID,
		"tutor_id":    in.TutorID,
		"has_pattern": in.SchedulePattern != nil,
		"has_link":    meetLink != nil,
	})

	s.logger.Info("Tutor assigned",
		zap.Int64("match_id", match.ID),
		zap.Int64("request_id", req.ID),
		zap.Int64("tutor_id", in.TutorID),
	)

	return match.ID, nil
}

// ReassignTutor меняет только преподавателя матча; занятия остаются за матчем
func (s *EngagementService) ReassignTutor(ctx context.Context, actor model.Actor, matchID, newTutorID int64, reason string) error {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return err
	}

	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if match.TutorID == newTutorID {
		return apperrors.ValidationError("new tutor is already assigned to this match")
	}
	if err := s.requireTutor(ctx, newTutorID); err != nil {
		return err
	}

	if err := s.store.Matches().UpdateTutor(ctx, matchID, newTutorID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return apperrors.Conflict("match has ended").WithCause(err)
		}
		return storageFailure(s.logger, "reassign tutor", err)
	}

	s.audit.Append(ctx, actor, model.AuditTutorReassigned, model.EntityMatch, matchID, map[string]any{
		"old_tutor_id": match.TutorID,
		"new_tutor_id": newTutorID,
		"reason":       reason,
	})

	s.logger.Info("Tutor reassigned",
		zap.Int64("match_id", matchID),
		zap.Int64("old_tutor_id", match.TutorID),
		zap.Int64("new_tutor_id", newTutorID),
	)

	return nil
}

// UpdateMatchDetails задаёт ссылку на встречу и/или шаблон расписания.
// Шаблон нельзя менять после генерации занятий.
func (s *EngagementService) UpdateMatchDetails(ctx context.Context, actor model.Actor, matchID int64, meetLink *string, pattern *model.SchedulePattern) error {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return err
	}
	if meetLink == nil && pattern == nil {
		return apperrors.MissingRequired("meet_link or schedule_pattern")
	}
	link, err := normalizeMeetLink(meetLink)
	if err != nil {
		return err
	}
	if pattern != nil {
		if err := pattern.Validate(); err != nil {
			return apperrors.InvalidInput("schedule_pattern", err.Error())
		}
	}

	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if pattern != nil {
		count, err := s.store.Sessions().CountByMatch(ctx, matchID)
		if err != nil {
			return storageFailure(s.logger, "count sessions", err)
		}
		if count > 0 {
			return apperrors.Conflict("schedule pattern cannot change after sessions were generated")
		}
	}

	// статус matched проверяется в том же UPDATE: генерация могла пройти после подсчёта
	if err := s.store.Matches().UpdateDetails(ctx, match.ID, link, pattern); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			if pattern != nil {
				return apperrors.Conflict("schedule pattern cannot change after sessions were generated").WithCause(err)
			}
			return apperrors.Conflict("match has ended").WithCause(err)
		}
		return storageFailure(s.logger, "update match details", err)
	}

	detail := map[string]any{}
	if link != nil {
		detail["meet_link"] = *link
	}
	if pattern != nil {
		detail["schedule_pattern"] = pattern.Normalized()
	}
	s.audit.Append(ctx, actor, model.AuditMatchDetailsUpdated, model.EntityMatch, matchID, detail)

	s.logger.Info("Match details updated",
		zap.Int64("match_id", matchID),
		zap.Bool("meet_link", link != nil),
		zap.Bool("schedule_pattern", pattern != nil),
	)

	return nil
}

// GenerateResult итог генерации занятий
type GenerateResult struct {
	MatchID      int64      `json:"match_id"`
	GenerationID uuid.UUID  `json:"generation_id"`
	SessionCount int        `json:"session_count"`
	RangeStart   model.Date `json:"range_start"`
	RangeEnd     model.Date `json:"range_end"`
}

// GenerateSessions один раз разворачивает шаблон матча в занятия.
// Взаимоисключение обеспечивает CAS matched -> active внутри транзакции
// плюс уникальная запись генерации на матч.
func (s *EngagementService) GenerateSessions(ctx context.Context, actor model.Actor, matchID int64) (*GenerateResult, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}

	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.SchedulePattern == nil {
		return nil, apperrors.MissingRequired("schedule_pattern")
	}
	if !match.HasMeetLink() {
		return nil, apperrors.MissingRequired("meet_link")
	}

	existing, err := s.store.Sessions().CountByMatch(ctx, matchID)
	if err != nil {
		return nil, storageFailure(s.logger, "count sessions", err)
	}
	if existing > 0 {
		return nil, apperrors.SessionsAlreadyGenerated().WithDetails(map[string]int{"session_count": existing})
	}
	if match.Status != model.MatchStatusMatched {
		return nil, apperrors.InvalidTransition("match", string(match.Status), string(model.MatchStatusActive))
	}

	active, err := s.store.Packages().ListActiveByRequest(ctx, match.RequestID)
	if err != nil {
		return nil, storageFailure(s.logger, "list active packages", err)
	}
	if len(active) != 1 {
		return nil, apperrors.NoActivePackage()
	}
	pkg := active[0]

	capCount := pkg.Remaining()
	if capCount <= 0 {
		return nil, apperrors.EntitlementExhausted()
	}

	pattern := *match.SchedulePattern
	rangeStart, rangeEnd, err := schedule.Window(pkg, pattern, s.clock.now())
	if err != nil {
		return nil, apperrors.InvalidInput("schedule_pattern", err.Error())
	}
	if rangeEnd.Before(rangeStart) {
		return nil, apperrors.NoSessionsGenerated().WithDetails(map[string]string{
			"reason": "package window has already passed",
		})
	}

	seq, err := schedule.Generate(pattern, rangeStart, rangeEnd, capCount)
	if err != nil {
		return nil, apperrors.InvalidInput("schedule_pattern", err.Error())
	}
	slots := schedule.Collect(seq)
	if len(slots) == 0 {
		return nil, apperrors.NoSessionsGenerated().WithDetails(map[string]string{
			"range_start": rangeStart.String(),
			"range_end":   rangeEnd.String(),
		})
	}

	gen := &model.SessionGeneration{
		ID:           uuid.New(),
		MatchID:      matchID,
		SessionCount: len(slots),
		RangeStart:   rangeStart,
		RangeEnd:     rangeEnd,
		CreatedBy:    actor.ID,
	}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		err := tx.Matches().UpdateStatus(ctx, matchID, []model.MatchStatus{model.MatchStatusMatched}, model.MatchStatusActive)
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				// параллельный вызов успел первым
				return apperrors.SessionsAlreadyGenerated().WithCause(err)
			}
			return fmt.Errorf("activate match: %w", err)
		}

		if err := tx.Sessions().CreateGeneration(ctx, gen); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.SessionsAlreadyGenerated().WithCause(err)
			}
			return fmt.Errorf("create generation: %w", err)
		}

		if _, err := s.ledger.populate(ctx, tx, matchID, gen.ID, slots); err != nil {
			return err
		}

		err = tx.Requests().UpdateStatus(ctx, match.RequestID, []model.RequestStatus{model.RequestStatusMatched}, model.RequestStatusActive)
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperrors.InvalidTransition("request", "current", string(model.RequestStatusActive)).WithCause(err)
			}
			return fmt.Errorf("activate request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageFailure(s.logger, "generate sessions", err)
	}

	s.metrics.SessionsGenerated(len(slots))
	s.audit.Append(ctx, actor, model.AuditSessionsGenerated, model.EntityMatch, matchID, map[string]any{
		"generation_id": gen.ID.String(),
		"session_count": len(slots),
		"package_id":    pkg.ID,
		"range_start":   rangeStart.String(),
		"range_end":     rangeEnd.String(),
		"first_start":   slots[0].Start,
		"last_start":    slots[len(slots)-1].Start,
	})

	s.logger.Info("Sessions generated",
		zap.Int64("match_id", matchID),
		zap.String("generation_id", gen.ID.String()),
		zap.Int("session_count", len(slots)),
		zap.Stringer("range_start", rangeStart),
		zap.Stringer("range_end", rangeEnd),
	)

	return &GenerateResult{
		MatchID:      matchID,
		GenerationID: gen.ID,
		SessionCount: len(slots),
		RangeStart:   rangeStart,
		RangeEnd:     rangeEnd,
	}, nil
}

var engagementRequestStatus = map[model.MatchStatus]model.RequestStatus{
	model.MatchStatusActive: model.RequestStatusActive,
	model.MatchStatusPaused: model.RequestStatusPaused,
	model.MatchStatusEnded:  model.RequestStatusEnded,
}

// SetEngagementStatus приостанавливает, возобновляет или завершает матч вместе с заявкой.
// Приостановить можно только матч с уже созданными занятиями.
func (s *EngagementService) SetEngagementStatus(ctx context.Context, actor model.Actor, matchID int64, to model.MatchStatus) error {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return err
	}
	requestTo, ok := engagementRequestStatus[to]
	if !ok {
		return apperrors.InvalidInput("status", fmt.Sprintf("%q is not a valid engagement status", to))
	}

	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}

	from := to.SourcesOf()
	switch to {
	case model.MatchStatusPaused:
		from = []model.MatchStatus{model.MatchStatusActive}
	case model.MatchStatusActive:
		// возобновление; matched -> active выполняет только генерация
		from = []model.MatchStatus{model.MatchStatusPaused}
	}
	if !contains(from, match.Status) {
		return apperrors.InvalidTransition("match", string(match.Status), string(to))
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Matches().UpdateStatus(ctx, matchID, from, to); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperrors.InvalidTransition("match", string(match.Status), string(to)).WithCause(err)
			}
			return fmt.Errorf("update match status: %w", err)
		}
		err := tx.Requests().UpdateStatus(ctx, match.RequestID, requestTo.SourcesOf(), requestTo)
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperrors.InvalidTransition("request", "current", string(requestTo)).WithCause(err)
			}
			return fmt.Errorf("update request status: %w", err)
		}
		return nil
	})
	if err != nil {
		return storageFailure(s.logger, "set engagement status", err)
	}

	s.audit.Append(ctx, actor, model.AuditEngagementStatus, model.EntityMatch, matchID, map[string]any{
		"request_id": match.RequestID,
		"from":       string(match.Status),
		"to":         string(to),
	})

	s.logger.Info("Engagement status changed",
		zap.Int64("match_id", matchID),
		zap.String("from", string(match.Status)),
		zap.String("to", string(to)),
	)

	return nil
}

// ExpirePackages закрывает пакеты с истёкшим окном; вызывается фоновым планировщиком
func (s *EngagementService) ExpirePackages(ctx context.Context) (int, error) {
	now := s.clock.now()

	expired, err := s.store.Packages().ExpireEnded(ctx, now)
	if err != nil {
		return 0, storageFailure(s.logger, "expire packages", err)
	}

	for _, pkg := range expired {
		s.audit.Append(ctx, model.SystemActor, model.AuditPackageExpired, model.EntityPackage, pkg.ID, map[string]any{
			"request_id":    pkg.RequestID,
			"end_date":      pkg.EndDate.String(),
			"sessions_used": pkg.SessionsUsed,
			"tier_sessions": int(pkg.TierSessions),
		})
	}
	s.metrics.PackagesExpired(len(expired))

	if len(expired) > 0 {
		s.logger.Info("Packages expired",
			zap.Int("count", len(expired)),
			zap.Time("now", now),
		)
	}

	return len(expired), nil
}

// Engagement сводка по заявке для транспорта и выгрузки
type Engagement struct {
	Request  *model.Request   `json:"request"`
	Packages []*model.Package `json:"packages"`
	Match    *model.Match     `json:"match,omitempty"`
	Sessions []*model.Session `json:"sessions"`
}

// ActivePackage активный пакет или nil
func (e *Engagement) ActivePackage() *model.Package {
	for _, p := range e.Packages {
		if p.Status == model.PackageStatusActive {
			return p
		}
	}
	return nil
}

// GetEngagement собирает заявку, пакеты, матч и занятия.
// Доступ: администратор, преподаватель матча, автор заявки.
func (s *EngagementService) GetEngagement(ctx context.Context, actor model.Actor, requestID int64) (*Engagement, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleTutor, model.RoleStudent, model.RoleParent); err != nil {
		return nil, err
	}

	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	match, err := s.store.Matches().GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, storageFailure(s.logger, "get match", err)
	}

	allowed := actor.HasRole(model.RoleAdmin) ||
		req.RequesterID == actor.ID ||
		(match != nil && match.TutorID == actor.ID)
	if !allowed {
		return nil, apperrors.Forbidden("engagement belongs to someone else")
	}

	packages, err := s.store.Packages().ListByRequest(ctx, requestID)
	if err != nil {
		return nil, storageFailure(s.logger, "list packages", err)
	}

	e := &Engagement{Request: req, Packages: packages, Match: match}
	if match != nil {
		e.Sessions, err = s.store.Sessions().ListByMatch(ctx, match.ID)
		if err != nil {
			return nil, storageFailure(s.logger, "list sessions", err)
		}
	}
	return e, nil
}

// GetMatch матч по ID для администратора или преподавателя матча
func (s *EngagementService) GetMatch(ctx context.Context, actor model.Actor, matchID int64) (*model.Match, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleTutor); err != nil {
		return nil, err
	}
	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(model.RoleAdmin) && match.TutorID != actor.ID {
		return nil, apperrors.Forbidden("match belongs to another tutor")
	}
	return match, nil
}

// ListRequests заявки в статусе, для очереди администратора
func (s *EngagementService) ListRequests(ctx context.Context, actor model.Actor, status model.RequestStatus) ([]*model.Request, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	requests, err := s.store.Requests().ListByStatus(ctx, status)
	if err != nil {
		return nil, storageFailure(s.logger, "list requests", err)
	}
	return requests, nil
}

// History журнал аудита по сущности, только для администратора
func (s *EngagementService) History(ctx context.Context, actor model.Actor, entityType model.EntityType, entityID int64) ([]*model.AuditLogEntry, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	entries, err := s.audit.History(ctx, entityType, entityID)
	if err != nil {
		return nil, storageFailure(s.logger, "list audit logs", err)
	}
	return entries, nil
}

func (s *EngagementService) getRequest(ctx context.Context, id int64) (*model.Request, error) {
	req, err := s.store.Requests().GetByID(ctx, id)
	if err != nil {
		return nil, storageFailure(s.logger, "get request", err)
	}
	if req == nil {
		return nil, apperrors.NotFound("request")
	}
	return req, nil
}

func (s *EngagementService) getMatch(ctx context.Context, id int64) (*model.Match, error) {
	match, err := s.store.Matches().GetByID(ctx, id)
	if err != nil {
		return nil, storageFailure(s.logger, "get match", err)
	}
	if match == nil {
		return nil, apperrors.NotFound("match")
	}
	return match, nil
}

func (s *EngagementService) requireTutor(ctx context.Context, tutorID int64) error {
	tutor, err := s.store.Users().GetByID(ctx, tutorID)
	if err != nil {
		return storageFailure(s.logger, "get tutor", err)
	}
	if tutor == nil {
		return apperrors.NotFound("tutor")
	}
	if !tutor.HasRole(model.RoleTutor) {
		return apperrors.ValidationError(fmt.Sprintf("user %d is not a tutor", tutorID))
	}
	return nil
}

// advanceRequest CAS по текущему статусу заявки
func (s *EngagementService) advanceRequest(ctx context.Context, tx repository.Store, req *model.Request, to model.RequestStatus) error {
	err := tx.Requests().UpdateStatus(ctx, req.ID, []model.RequestStatus{req.Status}, to)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return apperrors.InvalidTransition("request", string(req.Status), string(to)).WithCause(err)
		}
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

func normalizeMeetLink(link *string) (*string, error) {
	if link == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*link)
	if trimmed == "" {
		return nil, apperrors.InvalidInput("meet_link", "must not be blank")
	}
	if !strings.HasPrefix(trimmed, "https://") && !strings.HasPrefix(trimmed, "http://") {
		return nil, apperrors.InvalidInput("meet_link", "must be an http(s) URL")
	}
	return &trimmed, nil
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
