package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerDialogLifecycle(t *testing.T) {
	sm := NewManager()
	assert.Equal(t, StateNone, sm.GetState(1))

	data := map[string]int64{KeyPaymentID: 42}
	sm.Begin(1, StateRejectPaymentReason, data)
	data[KeyPaymentID] = 0

	assert.Equal(t, StateRejectPaymentReason, sm.GetState(1))
	assert.Equal(t, StateNone, sm.GetState(2))

	st, got := sm.Take(1)
	assert.Equal(t, StateRejectPaymentReason, st)
	assert.Equal(t, int64(42), got[KeyPaymentID])
	assert.Equal(t, StateNone, sm.GetState(1))

	st, got = sm.Take(1)
	assert.Equal(t, StateNone, st)
	assert.Nil(t, got)
}

func TestManagerBeginReplacesAndClears(t *testing.T) {
	sm := NewManager()
	sm.Begin(1, StateRejectPaymentReason, map[string]int64{KeyPaymentID: 1})
	sm.Begin(1, StateReassignReason, map[string]int64{KeyMatchID: 2, KeyTutorID: 3})

	st, got := sm.Take(1)
	assert.Equal(t, StateReassignReason, st)
	assert.Equal(t, map[string]int64{KeyMatchID: 2, KeyTutorID: 3}, got)

	sm.Begin(1, StateRejectPaymentReason, nil)
	sm.ClearState(1)
	assert.Equal(t, StateNone, sm.GetState(1))

	sm.Begin(1, StateNone, nil)
	assert.Equal(t, StateNone, sm.GetState(1))
}
