package service

import (
	"sync"
	"testing"
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStatusConsumesOnlyDoneAndStudentNoShow(t *testing.T) {
	f := newFixture(t)
	requestID, _, sessions := f.active(8)

	for _, s := range sessions[:3] {
		res, err := f.ledger.UpdateStatus(f.ctx, f.tutor, s.ID, requestID, model.SessionStatusDone, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Package)
		assert.Equal(t, model.SessionStatusDone, res.Session.Status)
	}

	notes := "tutor was ill"
	res, err := f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[3].ID, requestID, model.SessionStatusNoShowTutor, &notes)
	require.NoError(t, err)
	assert.Nil(t, res.Package)
	require.NotNil(t, res.Session.Notes)
	assert.Equal(t, notes, *res.Session.Notes)
	assert.Equal(t, 3, f.activePackage(requestID).SessionsUsed)

	res, err = f.ledger.UpdateStatus(f.ctx, f.admin, sessions[4].ID, requestID, model.SessionStatusNoShowStudent, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Package)
	assert.Equal(t, 4, res.Package.SessionsUsed)

	_, err = f.ledger.Reschedule(f.ctx, f.tutor, sessions[5].ID,
		sessions[5].ScheduledStartUTC.Add(48*time.Hour), sessions[5].ScheduledEndUTC.Add(48*time.Hour), "exam week")
	require.NoError(t, err)
	assert.Equal(t, 4, f.activePackage(requestID).SessionsUsed)
}

func TestUpdateStatusTerminalIsRejected(t *testing.T) {
	f := newFixture(t)
	requestID, _, sessions := f.active(8)

	_, err := f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[0].ID, requestID, model.SessionStatusDone, nil)
	require.NoError(t, err)

	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[0].ID, requestID, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeInvalidTransition)

	_, err = f.ledger.Reschedule(f.ctx, f.tutor, sessions[0].ID,
		fixtureStart.Add(72*time.Hour), fixtureStart.Add(73*time.Hour), "")
	requireCode(t, err, apperrors.ErrCodeInvalidTransition)

	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[1].ID, requestID, model.SessionStatusScheduled, nil)
	requireCode(t, err, apperrors.ErrCodeInvalidInput)

	assert.Equal(t, 1, f.activePackage(requestID).SessionsUsed)
}

func TestUpdateStatusChecksOwnership(t *testing.T) {
	f := newFixture(t)
	requestID, _, sessions := f.active(8)

	_, err := f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[0].ID, requestID+1000, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeNotFound)

	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor2, sessions[0].ID, requestID, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeForbidden)

	_, err = f.ledger.UpdateStatus(f.ctx, f.student, sessions[0].ID, requestID, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeForbidden)

	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor, 99999, requestID, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeNotFound)

	got, err := f.store.Sessions().GetByID(f.ctx, sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusScheduled, got.Status)
	assert.Equal(t, 0, f.activePackage(requestID).SessionsUsed)
}

func TestUpdateStatusConcurrentCompletion(t *testing.T) {
	f := newFixture(t)
	requestID, _, sessions := f.active(8)
	require.Len(t, sessions, 8)

	var wg sync.WaitGroup
	errs := make([]error, len(sessions))
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ledger.UpdateStatus(f.ctx, f.tutor, s.ID, requestID, model.SessionStatusDone, nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 8, f.activePackage(requestID).SessionsUsed)
}

func TestUpdateStatusSameSessionConcurrentlyCountsOnce(t *testing.T) {
	f := newFixture(t)
	requestID, _, sessions := f.active(8)

	const callers = 5
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[0].ID, requestID, model.SessionStatusDone, nil)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.activePackage(requestID).SessionsUsed)
}

func TestUpdateStatusExhaustedRollsBack(t *testing.T) {
	f := newFixture(t)
	requestID, matchID, sessions := f.active(8)

	// лишнее занятие сверх тарифа, например перенесённое вручную
	gen, err := f.store.Sessions().GetGeneration(f.ctx, matchID)
	require.NoError(t, err)
	extra := &model.Session{
		MatchID:           matchID,
		GenerationID:      gen.ID,
		ScheduledStartUTC: time.Date(2024, time.March, 29, 13, 0, 0, 0, time.UTC),
		ScheduledEndUTC:   time.Date(2024, time.March, 29, 14, 0, 0, 0, time.UTC),
		Status:            model.SessionStatusScheduled,
	}
	require.NoError(t, f.store.Sessions().CreateBatch(f.ctx, []*model.Session{extra}))

	for _, s := range sessions {
		_, err := f.ledger.UpdateStatus(f.ctx, f.tutor, s.ID, requestID, model.SessionStatusDone, nil)
		require.NoError(t, err)
	}

	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor, extra.ID, requestID, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeEntitlementExhausted)

	got, err := f.store.Sessions().GetByID(f.ctx, extra.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusScheduled, got.Status)

	pkg := f.activePackage(requestID)
	assert.Equal(t, 8, pkg.SessionsUsed)
	assert.Equal(t, 0, pkg.Remaining())

	// неявка преподавателя не списывает и проходит
	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor, extra.ID, requestID, model.SessionStatusNoShowTutor, nil)
	require.NoError(t, err)
}

func TestUpdateStatusWithoutActivePackage(t *testing.T) {
	f := newFixture(t)
	requestID, _, sessions := f.active(8)

	f.clock.Set(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	n, err := f.engagement.ExpirePackages(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[7].ID, requestID, model.SessionStatusDone, nil)
	requireCode(t, err, apperrors.ErrCodeNoActivePackage)

	got, err := f.store.Sessions().GetByID(f.ctx, sessions[7].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusScheduled, got.Status)
}

func TestUpdateStatusToRescheduledDoesNotConsume(t *testing.T) {
	f := newFixture(t)
	requestID, matchID, sessions := f.active(8)

	for range 2 {
		res, err := f.ledger.UpdateStatus(f.ctx, f.tutor, sessions[0].ID, requestID, model.SessionStatusRescheduled, nil)
		require.NoError(t, err)
		assert.Nil(t, res.Package)
		assert.Equal(t, model.SessionStatusRescheduled, res.Session.Status)
	}

	assert.Equal(t, 0, f.activePackage(requestID).SessionsUsed)
	assert.Equal(t, 8, f.sessionCount(matchID))
}

// окно пакета считается в поясе заявки: в Лос-Анджелесе 30 марта, в UTC уже 31-е
func TestExpireUsesRequestTimezone(t *testing.T) {
	f := newFixture(t)
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	f.clock.Set(time.Date(2024, time.March, 1, 12, 0, 0, 0, la))

	req, err := f.engagement.CreateRequest(f.ctx, f.student, CreateRequestInput{
		Subject: "Physics", Level: "A-Level", Timezone: "America/Los_Angeles",
	})
	require.NoError(t, err)
	record, err := f.engagement.RecordPayment(f.ctx, f.student, RecordPaymentInput{
		RequestID: req.ID, Tier: 8, AmountCents: 1500000, Reference: "TRX-LA",
	})
	require.NoError(t, err)
	pkg, err := f.engagement.VerifyPayment(f.ctx, f.admin, record.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewDate(2024, time.March, 1), pkg.StartDate)
	assert.Equal(t, model.NewDate(2024, time.March, 31), pkg.EndDate)

	matchID, err := f.engagement.AssignTutor(f.ctx, f.admin, AssignTutorInput{
		RequestID: req.ID, TutorID: f.tutor.ID, MeetLink: meetLink(),
		SchedulePattern: &model.SchedulePattern{Timezone: "America/Los_Angeles", Days: []int{1, 3}, Time: "17:00", DurationMins: 60},
	})
	require.NoError(t, err)
	_, err = f.engagement.GenerateSessions(f.ctx, f.admin, matchID)
	require.NoError(t, err)
	sessions, err := f.store.Sessions().ListByMatch(f.ctx, matchID)
	require.NoError(t, err)
	require.NotEmpty(t, sessions)

	// 2024-03-31 00:45 UTC
	f.clock.Set(time.Date(2024, time.March, 30, 17, 45, 0, 0, la))
	n, err := f.engagement.ExpirePackages(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	last := sessions[len(sessions)-1]
	res, err := f.ledger.UpdateStatus(f.ctx, f.tutor, last.ID, req.ID, model.SessionStatusDone, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Package)
	assert.Equal(t, 1, res.Package.SessionsUsed)

	f.clock.Set(time.Date(2024, time.March, 31, 0, 0, 0, 0, la))
	n, err = f.engagement.ExpirePackages(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	requestID, matchID, sessions := f.active(8)
	target := sessions[0]

	t.Run("late reschedule is flagged but allowed", func(t *testing.T) {
		start := fixtureStart.Add(2 * time.Hour)
		res, err := f.ledger.Reschedule(f.ctx, f.tutor, target.ID, start, start.Add(time.Hour), "student asked")
		require.NoError(t, err)
		assert.True(t, res.LateReschedule)
		assert.Equal(t, model.SessionStatusRescheduled, res.Session.Status)
		assert.Equal(t, start, res.Session.ScheduledStartUTC)
		assert.Equal(t, target.ID, res.Session.ID)
	})

	t.Run("reschedule beyond window is not late", func(t *testing.T) {
		start := fixtureStart.Add(72 * time.Hour)
		res, err := f.ledger.Reschedule(f.ctx, f.tutor, target.ID, start, start.Add(time.Hour), "")
		require.NoError(t, err)
		assert.False(t, res.LateReschedule)
	})

	t.Run("end must follow start", func(t *testing.T) {
		start := fixtureStart.Add(72 * time.Hour)
		_, err := f.ledger.Reschedule(f.ctx, f.tutor, target.ID, start, start, "")
		requireCode(t, err, apperrors.ErrCodeInvalidInput)
	})

	t.Run("other tutor cannot reschedule", func(t *testing.T) {
		start := fixtureStart.Add(72 * time.Hour)
		_, err := f.ledger.Reschedule(f.ctx, f.tutor2, target.ID, start, start.Add(time.Hour), "")
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	assert.Equal(t, 8, f.sessionCount(matchID))
	assert.Equal(t, 0, f.activePackage(requestID).SessionsUsed)

	res, err := f.ledger.UpdateStatus(f.ctx, f.tutor, target.ID, requestID, model.SessionStatusDone, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusDone, res.Session.Status)
	assert.Equal(t, 1, f.activePackage(requestID).SessionsUsed)

	history, err := f.engagement.History(f.ctx, f.admin, model.EntitySession, target.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.AuditSessionRescheduled, history[0].Action)
	assert.Equal(t, true, history[0].Detail["late_reschedule"])
	assert.Equal(t, model.AuditSessionStatus, history[2].Action)
}

func TestListByMatchAccess(t *testing.T) {
	f := newFixture(t)
	_, matchID, sessions := f.active(8)

	got, err := f.ledger.ListByMatch(f.ctx, f.tutor, matchID)
	require.NoError(t, err)
	assert.Len(t, got, len(sessions))

	_, err = f.ledger.ListByMatch(f.ctx, f.tutor2, matchID)
	requireCode(t, err, apperrors.ErrCodeForbidden)

	s, err := f.ledger.Get(f.ctx, f.admin, sessions[2].ID)
	require.NoError(t, err)
	assert.Equal(t, sessions[2].ScheduledStartUTC, s.ScheduledStartUTC)
}
