package model

import (
	"fmt"
	"strings"
	"time"
)

type MatchStatus string

const (
	MatchStatusMatched MatchStatus = "matched"
	MatchStatusActive  MatchStatus = "active"
	MatchStatusPaused  MatchStatus = "paused"
	MatchStatusEnded   MatchStatus = "ended"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusMatched: {MatchStatusActive, MatchStatusPaused, MatchStatusEnded},
	MatchStatusActive:  {MatchStatusPaused, MatchStatusEnded},
	MatchStatusPaused:  {MatchStatusActive, MatchStatusEnded},
	MatchStatusEnded:   nil,
}

func ParseMatchStatus(s string) (MatchStatus, error) {
	status := MatchStatus(s)
	if _, ok := matchTransitions[status]; !ok {
		return "", fmt.Errorf("unknown match status %q", s)
	}
	return status, nil
}

func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	return contains(matchTransitions[s], next)
}

// SourcesOf lists every status that may move to next.
func (next MatchStatus) SourcesOf() []MatchStatus {
	var out []MatchStatus
	for from, targets := range matchTransitions {
		if contains(targets, next) {
			out = append(out, from)
		}
	}
	return out
}

// Match binds a request to a tutor. The id survives tutor reassignment.
type Match struct {
	ID              int64            `json:"id"`
	RequestID       int64            `json:"request_id"`
	TutorID         int64            `json:"tutor_id"`
	SchedulePattern *SchedulePattern `json:"schedule_pattern"`
	MeetLink        *string          `json:"meet_link"`
	Status          MatchStatus      `json:"status"`
	AssignedBy      int64            `json:"assigned_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HasMeetLink treats a blank link as missing.
func (m *Match) HasMeetLink() bool {
	return m.MeetLink != nil && strings.TrimSpace(*m.MeetLink) != ""
}
