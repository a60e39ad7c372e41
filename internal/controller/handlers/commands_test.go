package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/controller/state"
	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/memstore"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var firstID = regexp.MustCompile(`#(\d+)`)

type botFixture struct {
	h          *Handlers
	engagement *service.EngagementService
	admin      *models.User
	tutor      *models.User
	student    *models.User
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memstore.New(memstore.WithClock(clock))
	logger := zaptest.NewLogger(t)
	m := metrics.New()

	audit := service.NewAuditTrail(store.AuditLogs(), m, logger)
	ledger := service.NewSessionLedger(store, service.NewEntitlementCounter(), audit, m, logger, service.LedgerConfig{Clock: clock})
	engagement := service.NewEngagementService(store, ledger, audit, m, logger, service.EngagementConfig{Clock: clock})
	users := service.NewUserService(store.Users(), map[int64][]model.Role{100: {model.RoleAdmin}, 200: {model.RoleTutor}}, logger)

	h := NewHandlers(users, engagement, ledger, nil, state.NewManager(), logger)
	h.now = clock

	f := &botFixture{
		h:          h,
		engagement: engagement,
		admin:      &models.User{ID: 100, Username: "admin", FirstName: "Admin"},
		tutor:      &models.User{ID: 200, Username: "tutor", FirstName: "Tutor"},
		student:    &models.User{ID: 300, Username: "student", FirstName: "Student"},
	}
	for _, u := range []*models.User{f.admin, f.tutor, f.student} {
		r := f.send(u, "/start")
		require.Contains(t, r.text, "Привет")
	}
	return f
}

func (f *botFixture) send(from *models.User, text string) *reply {
	return f.h.Dispatch(context.Background(), from, text)
}

func idOf(t *testing.T, r *reply) int64 {
	t.Helper()
	require.NotNil(t, r)
	m := firstID.FindStringSubmatch(r.text)
	require.Len(t, m, 2, r.text)
	id, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	return id
}

// tutorID внутренний ID преподавателя для /assign
func (f *botFixture) tutorID(t *testing.T) int64 {
	t.Helper()
	user, err := f.h.userService.GetByTelegramID(context.Background(), f.tutor.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user.ID
}

func (f *botFixture) paidRequest(t *testing.T) int64 {
	t.Helper()
	requestID := idOf(t, f.send(f.student, "/request Asia/Karachi Математика ОГЭ"))
	paymentID := idOf(t, f.send(f.student, fmt.Sprintf("/pay %d 8 2400000 sbp-42", requestID)))
	r := f.send(f.admin, fmt.Sprintf("/verify %d", paymentID))
	require.Contains(t, r.text, "2024-03-30")
	return requestID
}

func TestBotFullEngagementFlow(t *testing.T) {
	f := newBotFixture(t)
	requestID := f.paidRequest(t)

	matchID := idOf(t, f.send(f.admin, fmt.Sprintf("/assign %d %d", requestID, f.tutorID(t))))
	assert.Contains(t, f.send(f.admin, fmt.Sprintf("/link %d https://meet.example.com/abc", matchID)).text, "сохранена")
	assert.Contains(t, f.send(f.admin, fmt.Sprintf("/pattern %d Asia/Karachi mon,wed 18:00 60", matchID)).text, "сохранено")

	r := f.send(f.admin, fmt.Sprintf("/generate %d", matchID))
	assert.Contains(t, r.text, "Создано 8 занятий")

	r = f.send(f.admin, fmt.Sprintf("/generate %d", matchID))
	assert.Contains(t, r.text, "уже созданы")

	listing := f.send(f.tutor, fmt.Sprintf("/sessions %d", matchID))
	r = listing
	require.NotNil(t, r.markup)
	// 8 занятий и ссылка на встречу
	assert.Len(t, r.markup.InlineKeyboard, 9)
	assert.Contains(t, r.text, "18:00")

	sessionID := idOf(t, &reply{text: r.markup.InlineKeyboard[0][0].Text})
	r = f.send(f.tutor, fmt.Sprintf("/status %d %d done тема: дроби", requestID, sessionID))
	assert.Contains(t, r.text, "Использовано 1 из 8")

	r = f.send(f.tutor, fmt.Sprintf("/status %d %d done", requestID, sessionID))
	assert.Contains(t, r.text, "Недопустимая смена статуса")

	r = f.send(f.student, fmt.Sprintf("/status %d %d done", requestID, sessionID))
	assert.Contains(t, r.text, "Недостаточно прав")

	secondID := idOf(t, &reply{text: listing.markup.InlineKeyboard[1][0].Text})
	r = f.send(f.tutor, fmt.Sprintf("/status %d %d rescheduled", requestID, secondID))
	assert.Contains(t, r.text, "rescheduled")
	assert.NotContains(t, r.text, "Использовано")

	r = f.send(f.admin, fmt.Sprintf("/export %d", matchID))
	require.NotNil(t, r.document)
	assert.Equal(t, fmt.Sprintf("ledger_match_%d_20240301_000000.xlsx", matchID), r.document.name)
	assert.NotEmpty(t, r.document.data)

	r = f.send(f.student, fmt.Sprintf("/engagement %d", requestID))
	assert.Contains(t, r.text, "1/8")
}

func TestBotReschedulePreservesDuration(t *testing.T) {
	f := newBotFixture(t)
	requestID := f.paidRequest(t)
	matchID := idOf(t, f.send(f.admin, fmt.Sprintf("/assign %d %d", requestID, f.tutorID(t))))
	f.send(f.admin, fmt.Sprintf("/link %d https://meet.example.com/abc", matchID))
	f.send(f.admin, fmt.Sprintf("/pattern %d Asia/Karachi 1,3 18:00 90", matchID))
	f.send(f.admin, fmt.Sprintf("/generate %d", matchID))

	sessions, err := f.h.ledger.ListByMatch(context.Background(), model.Actor{ID: 1, Roles: []model.Role{model.RoleAdmin}}, matchID)
	require.NoError(t, err)
	require.NotEmpty(t, sessions)

	// 1 марта 00:00 UTC, до 1 марта 19:00 PKT меньше суток
	r := f.send(f.tutor, fmt.Sprintf("/reschedule %d 2024-03-01 19:00 заболел", sessions[0].ID))
	assert.Contains(t, r.text, "Поздний перенос")

	got, err := f.h.ledger.Get(context.Background(), model.Actor{ID: 1, Roles: []model.Role{model.RoleAdmin}}, sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 14, 0, 0, 0, time.UTC), got.ScheduledStartUTC)
	assert.Equal(t, 90*time.Minute, got.ScheduledEndUTC.Sub(got.ScheduledStartUTC))
	assert.Equal(t, model.SessionStatusRescheduled, got.Status)

	r = f.send(f.tutor, fmt.Sprintf("/reschedule %d 01.03.2024 19:00", sessions[1].ID))
	assert.Contains(t, r.text, "Использование: /reschedule")
}

func TestBotRejectPaymentDialog(t *testing.T) {
	f := newBotFixture(t)
	requestID := idOf(t, f.send(f.student, "/request Europe/Moscow Физика"))
	paymentID := idOf(t, f.send(f.student, fmt.Sprintf("/pay %d 12 3000000", requestID)))

	r := f.send(f.admin, fmt.Sprintf("/reject %d", paymentID))
	assert.Contains(t, r.text, "причину")
	assert.Equal(t, state.StateRejectPaymentReason, f.h.stateManager.GetState(f.admin.ID))

	r = f.send(f.admin, "перевод не найден")
	assert.Contains(t, r.text, "отклонена")
	assert.Equal(t, state.StateNone, f.h.stateManager.GetState(f.admin.ID))

	// заявку можно оплатить снова
	r = f.send(f.student, fmt.Sprintf("/pay %d 12 3000000", requestID))
	assert.Contains(t, r.text, "ждёт подтверждения")
}

func TestBotCancelDialog(t *testing.T) {
	f := newBotFixture(t)

	assert.Contains(t, f.send(f.admin, "/cancel").text, "Нет активных операций")

	f.send(f.admin, "/reassign 5 6")
	assert.Equal(t, state.StateReassignReason, f.h.stateManager.GetState(f.admin.ID))
	assert.Contains(t, f.send(f.admin, "/cancel").text, "отменена")
	assert.Nil(t, f.send(f.admin, "просто текст"))
}

func TestBotErrors(t *testing.T) {
	f := newBotFixture(t)
	stranger := &models.User{ID: 999, FirstName: "Nobody"}

	tests := []struct {
		name string
		from *models.User
		text string
		want string
	}{
		{"unknown command", f.student, "/dance", "Неизвестная команда"},
		{"not registered", stranger, "/help", "/start"},
		{"usage", f.student, "/pay 1", "Использование: /pay"},
		{"bad id", f.admin, "/generate abc", "Использование: /generate"},
		{"bad pattern", f.admin, "/pattern 1 Mars/Base 1 18:00 60", "Использование: /pattern"},
		{"student cannot verify", f.student, "/verify 1", "Недостаточно прав"},
		{"missing match", f.admin, "/generate 12345", "Не найдено"},
		{"bad tier", f.student, "/pay 1 10 100", "❌"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := f.send(tc.from, tc.text)
			require.NotNil(t, r)
			assert.Contains(t, r.text, tc.want)
		})
	}
}

func TestBotHelpDependsOnRole(t *testing.T) {
	f := newBotFixture(t)

	student := f.send(f.student, "/help").text
	assert.NotContains(t, student, "/generate")
	assert.NotContains(t, student, "/status")

	tutor := f.send(f.tutor, "/help").text
	assert.Contains(t, tutor, "/status")
	assert.NotContains(t, tutor, "/generate")

	assert.Contains(t, f.send(f.admin, "/help@tutorflow_bot").text, "/generate")
}
