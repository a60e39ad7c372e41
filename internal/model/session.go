package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusScheduled     SessionStatus = "scheduled"
	SessionStatusDone          SessionStatus = "done"
	SessionStatusRescheduled   SessionStatus = "rescheduled"
	SessionStatusNoShowStudent SessionStatus = "no_show_student"
	SessionStatusNoShowTutor   SessionStatus = "no_show_tutor"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusScheduled: {
		SessionStatusDone, SessionStatusNoShowStudent, SessionStatusNoShowTutor, SessionStatusRescheduled,
	},
	SessionStatusRescheduled: {
		SessionStatusDone, SessionStatusNoShowStudent, SessionStatusNoShowTutor, SessionStatusRescheduled,
	},
	SessionStatusDone:          nil,
	SessionStatusNoShowStudent: nil,
	SessionStatusNoShowTutor:   nil,
}

func ParseSessionStatus(s string) (SessionStatus, error) {
	status := SessionStatus(s)
	if _, ok := sessionTransitions[status]; !ok {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return status, nil
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return contains(sessionTransitions[s], next)
}

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// Consumes reports whether reaching s deducts one unit of entitlement.
// Tutor no-shows and reschedules never cost the student.
func (s SessionStatus) Consumes() bool {
	return s == SessionStatusDone || s == SessionStatusNoShowStudent
}

// SourcesOf lists every status that may move to next.
func (next SessionStatus) SourcesOf() []SessionStatus {
	var out []SessionStatus
	for from, targets := range sessionTransitions {
		if contains(targets, next) {
			out = append(out, from)
		}
	}
	return out
}

// Session is one concrete lesson. Times are instants; the zone is no longer needed once
// generated.
type Session struct {
	ID                int64         `json:"id"`
	MatchID           int64         `json:"match_id"`
	GenerationID      uuid.UUID     `json:"generation_id"`
	ScheduledStartUTC time.Time     `json:"scheduled_start_utc"`
	ScheduledEndUTC   time.Time     `json:"scheduled_end_utc"`
	Status            SessionStatus `json:"status"`
	Notes             *string       `json:"notes"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SessionGeneration records the single generation event of a match.
type SessionGeneration struct {
	ID           uuid.UUID `json:"id"`
	MatchID      int64     `json:"match_id"`
	SessionCount int       `json:"session_count"`
	RangeStart   Date      `json:"range_start"`
	RangeEnd     Date      `json:"range_end"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}
