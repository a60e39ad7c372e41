package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	for _, from := range []SessionStatus{SessionStatusScheduled, SessionStatusRescheduled} {
		for _, to := range []SessionStatus{
			SessionStatusDone, SessionStatusNoShowStudent, SessionStatusNoShowTutor, SessionStatusRescheduled,
		} {
			assert.True(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
		assert.False(t, from.CanTransitionTo(SessionStatusScheduled))
	}

	for _, terminal := range []SessionStatus{SessionStatusDone, SessionStatusNoShowStudent, SessionStatusNoShowTutor} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, terminal.CanTransitionTo(SessionStatusRescheduled))
	}
}

func TestSessionConsumes(t *testing.T) {
	assert.True(t, SessionStatusDone.Consumes())
	assert.True(t, SessionStatusNoShowStudent.Consumes())
	assert.False(t, SessionStatusNoShowTutor.Consumes())
	assert.False(t, SessionStatusRescheduled.Consumes())
	assert.False(t, SessionStatusScheduled.Consumes())
}

func TestSourcesOf(t *testing.T) {
	assert.ElementsMatch(t,
		[]SessionStatus{SessionStatusScheduled, SessionStatusRescheduled},
		SessionStatusDone.SourcesOf())
	assert.ElementsMatch(t,
		[]MatchStatus{MatchStatusMatched, MatchStatusPaused},
		MatchStatusActive.SourcesOf())
}

func TestRequestTransitions(t *testing.T) {
	assert.True(t, RequestStatusPaymentPending.CanTransitionTo(RequestStatusReadyToMatch))
	assert.True(t, RequestStatusMatched.CanTransitionTo(RequestStatusActive))
	assert.False(t, RequestStatusNew.CanTransitionTo(RequestStatusActive))
	assert.False(t, RequestStatusEnded.CanTransitionTo(RequestStatusActive))
}

func TestParseStatuses(t *testing.T) {
	s, err := ParseSessionStatus("no_show_student")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusNoShowStudent, s)

	_, err = ParseSessionStatus("cancelled")
	assert.Error(t, err)
	_, err = ParseRequestStatus("archived")
	assert.Error(t, err)
	_, err = ParseMatchStatus("")
	assert.Error(t, err)
	_, err = ParsePackageStatus("refunded")
	assert.Error(t, err)
	_, err = ParsePaymentStatus("refunded")
	assert.NoError(t, err)
}

func TestParseTier(t *testing.T) {
	for _, n := range []int{8, 12, 20} {
		tier, err := ParseTier(n)
		require.NoError(t, err)
		assert.Equal(t, Tier(n), tier)
	}
	_, err := ParseTier(10)
	assert.Error(t, err)
}

func TestPackageRemaining(t *testing.T) {
	p := Package{TierSessions: Tier8, SessionsUsed: 3}
	assert.Equal(t, 5, p.Remaining())
	p.SessionsUsed = 8
	assert.Equal(t, 0, p.Remaining())
}

func TestActorRoles(t *testing.T) {
	a := Actor{ID: 1, Roles: []Role{RoleTutor}}
	assert.True(t, a.HasRole(RoleTutor))
	assert.False(t, a.HasRole(RoleAdmin))
	assert.True(t, a.HasAnyRole(RoleAdmin, RoleTutor))
	assert.False(t, a.HasAnyRole())
}
