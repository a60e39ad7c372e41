package callbacks

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/memstore"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSessionActionRoundTrip(t *testing.T) {
	for status := range actionCodes {
		a := SessionStatusAction{SessionID: 15, RequestID: 3, Status: status}
		data := EncodeSessionAction(a)
		assert.LessOrEqual(t, len(data), 64)

		got, err := DecodeSessionAction(data)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestDecodeSessionActionRejectsGarbage(t *testing.T) {
	for _, data := range []string{"", "sess:", "sess:d:1", "sess:x:1:2", "sess:d:a:2", "other:d:1:2"} {
		_, err := DecodeSessionAction(data)
		assert.Error(t, err, data)
	}
}

func TestSessionKeyboardSkipsTerminal(t *testing.T) {
	sessions := []*model.Session{
		{ID: 1, Status: model.SessionStatusDone},
		{ID: 2, Status: model.SessionStatusScheduled},
		{ID: 3, Status: model.SessionStatusRescheduled},
		{ID: 4, Status: model.SessionStatusScheduled},
	}

	link := "https://meet.example.com/x"
	match := &model.Match{ID: 4, RequestID: 9, MeetLink: &link}

	kb := SessionKeyboard(match, sessions, 2)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "#2", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "sess:d:2:9", kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "#3", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, link, kb.InlineKeyboard[2][0].URL)

	match.MeetLink = nil
	assert.Len(t, SessionKeyboard(match, sessions, 5).InlineKeyboard, 3)
	assert.Nil(t, SessionKeyboard(match, sessions[:1], 5))
}

func TestApplyMarksSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memstore.New(memstore.WithClock(clock))
	logger := zaptest.NewLogger(t)
	m := metrics.New()

	audit := service.NewAuditTrail(store.AuditLogs(), m, logger)
	ledger := service.NewSessionLedger(store, service.NewEntitlementCounter(), audit, m, logger, service.LedgerConfig{Clock: clock})
	engagement := service.NewEngagementService(store, ledger, audit, m, logger, service.EngagementConfig{Clock: clock})
	users := service.NewUserService(store.Users(), map[int64][]model.Role{1: {model.RoleAdmin}, 2: {model.RoleTutor}}, logger)

	adminUser, err := users.RegisterUser(ctx, 1, "admin", "Admin", "")
	require.NoError(t, err)
	tutorUser, err := users.RegisterUser(ctx, 2, "tutor", "Tutor", "")
	require.NoError(t, err)
	studentUser, err := users.RegisterUser(ctx, 3, "student", "Student", "")
	require.NoError(t, err)
	admin, student := adminUser.Actor(), studentUser.Actor()

	req, err := engagement.CreateRequest(ctx, student, service.CreateRequestInput{Subject: "Math", Timezone: "Asia/Karachi"})
	require.NoError(t, err)
	record, err := engagement.RecordPayment(ctx, student, service.RecordPaymentInput{RequestID: req.ID, Tier: 8})
	require.NoError(t, err)
	_, err = engagement.VerifyPayment(ctx, admin, record.Payment.ID)
	require.NoError(t, err)
	link := "https://meet.example.com/x"
	matchID, err := engagement.AssignTutor(ctx, admin, service.AssignTutorInput{
		RequestID: req.ID, TutorID: tutorUser.ID, MeetLink: &link,
		SchedulePattern: &model.SchedulePattern{Timezone: "Asia/Karachi", Days: []int{1, 3}, Time: "18:00", DurationMins: 60},
	})
	require.NoError(t, err)
	_, err = engagement.GenerateSessions(ctx, admin, matchID)
	require.NoError(t, err)
	sessions, err := ledger.ListByMatch(ctx, admin, matchID)
	require.NoError(t, err)

	h := NewHandler(users, ledger, logger)
	data := EncodeSessionAction(SessionStatusAction{SessionID: sessions[0].ID, RequestID: req.ID, Status: model.SessionStatusDone})

	text, err := h.Apply(ctx, 2, data)
	require.NoError(t, err)
	assert.Contains(t, text, "done")
	assert.Contains(t, text, "1/8")

	_, err = h.Apply(ctx, 2, data)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.GetCode(err))

	_, err = h.Apply(ctx, 3, data)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))

	_, err = h.Apply(ctx, 999, data)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(err))

	_, err = h.Apply(ctx, 2, "sess:zz:1:1")
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}
