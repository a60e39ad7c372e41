package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"github.com/Freeeeeet/tutorflow/internal/repository/memstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepo) ListByEntity(ctx context.Context, entityType model.EntityType, entityID int64) ([]*model.AuditLogEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	if v := args.Get(0); v != nil {
		return v.([]*model.AuditLogEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memstore.Store
	clock      *fakeClock
	metrics    *metrics.Metrics
	engagement *EngagementService
	ledger     *SessionLedger

	admin   model.Actor
	tutor   model.Actor
	tutor2  model.Actor
	student model.Actor
}

type fixtureOption struct {
	auditRepo repository.AuditLogRepository
	logger    *zap.Logger
}

// 2024-03-01 00:00 UTC: в Карачи уже 1 марта, окно пакета 1-30 марта
var fixtureStart = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, opts ...func(*fixtureOption)) *fixture {
	t.Helper()

	o := fixtureOption{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zaptest.NewLogger(t)
	}

	clock := &fakeClock{now: fixtureStart}
	store := memstore.New(memstore.WithClock(clock.Now))
	if o.auditRepo == nil {
		o.auditRepo = store.AuditLogs()
	}

	m := metrics.New()
	audit := NewAuditTrail(o.auditRepo, m, o.logger)
	ledger := NewSessionLedger(store, NewEntitlementCounter(), audit, m, o.logger, LedgerConfig{Clock: clock.Now})
	engagement := NewEngagementService(store, ledger, audit, m, o.logger, EngagementConfig{Clock: clock.Now})

	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		clock:      clock,
		metrics:    m,
		engagement: engagement,
		ledger:     ledger,
	}
	f.admin = f.user(100, model.RoleAdmin)
	f.tutor = f.user(200, model.RoleTutor)
	f.tutor2 = f.user(201, model.RoleTutor)
	f.student = f.user(300, model.RoleStudent)
	return f
}

func (f *fixture) user(telegramID int64, roles ...model.Role) model.Actor {
	f.t.Helper()
	u := &model.User{TelegramID: telegramID, FirstName: "user", Roles: roles}
	require.NoError(f.t, f.store.Users().Create(f.ctx, u))
	return u.Actor()
}

func karachiPattern() *model.SchedulePattern {
	return &model.SchedulePattern{Timezone: "Asia/Karachi", Days: []int{1, 3}, Time: "18:00", DurationMins: 60}
}

func meetLink() *string {
	link := "https://meet.example.com/abc-defg-hij"
	return &link
}

// readyRequest заявка с подтверждённой оплатой (ready_to_match)
func (f *fixture) readyRequest(tier int) (*model.Request, *model.Package) {
	f.t.Helper()

	req, err := f.engagement.CreateRequest(f.ctx, f.student, CreateRequestInput{
		Subject: "Mathematics", Level: "O-Level", Timezone: "Asia/Karachi",
	})
	require.NoError(f.t, err)

	record, err := f.engagement.RecordPayment(f.ctx, f.student, RecordPaymentInput{
		RequestID: req.ID, Tier: tier, AmountCents: 1500000, Reference: "TRX-1",
	})
	require.NoError(f.t, err)

	pkg, err := f.engagement.VerifyPayment(f.ctx, f.admin, record.Payment.ID)
	require.NoError(f.t, err)

	req, err = f.store.Requests().GetByID(f.ctx, req.ID)
	require.NoError(f.t, err)
	return req, pkg
}

// matched заявка с матчем; pattern и link могут быть nil
func (f *fixture) matched(tier int, pattern *model.SchedulePattern, link *string) (requestID, matchID int64) {
	f.t.Helper()

	req, _ := f.readyRequest(tier)
	matchID, err := f.engagement.AssignTutor(f.ctx, f.admin, AssignTutorInput{
		RequestID: req.ID, TutorID: f.tutor.ID, MeetLink: link, SchedulePattern: pattern,
	})
	require.NoError(f.t, err)
	return req.ID, matchID
}

// active матч с созданными занятиями
func (f *fixture) active(tier int) (requestID, matchID int64, sessions []*model.Session) {
	f.t.Helper()

	requestID, matchID = f.matched(tier, karachiPattern(), meetLink())
	_, err := f.engagement.GenerateSessions(f.ctx, f.admin, matchID)
	require.NoError(f.t, err)

	sessions, err = f.store.Sessions().ListByMatch(f.ctx, matchID)
	require.NoError(f.t, err)
	return requestID, matchID, sessions
}

func (f *fixture) activePackage(requestID int64) *model.Package {
	f.t.Helper()
	active, err := f.store.Packages().ListActiveByRequest(f.ctx, requestID)
	require.NoError(f.t, err)
	require.Len(f.t, active, 1)
	return active[0]
}

func (f *fixture) sessionCount(matchID int64) int {
	f.t.Helper()
	n, err := f.store.Sessions().CountByMatch(f.ctx, matchID)
	require.NoError(f.t, err)
	return n
}
