package model

import (
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestStatusNew            RequestStatus = "new"
	RequestStatusPaymentPending RequestStatus = "payment_pending"
	RequestStatusReadyToMatch   RequestStatus = "ready_to_match"
	RequestStatusMatched        RequestStatus = "matched"
	RequestStatusActive         RequestStatus = "active"
	RequestStatusPaused         RequestStatus = "paused"
	RequestStatusEnded          RequestStatus = "ended"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusNew:            {RequestStatusPaymentPending, RequestStatusEnded},
	RequestStatusPaymentPending: {RequestStatusReadyToMatch, RequestStatusNew, RequestStatusEnded},
	RequestStatusReadyToMatch:   {RequestStatusMatched, RequestStatusEnded},
	RequestStatusMatched:        {RequestStatusActive, RequestStatusPaused, RequestStatusEnded},
	RequestStatusActive:         {RequestStatusPaused, RequestStatusEnded},
	RequestStatusPaused:         {RequestStatusActive, RequestStatusEnded},
	RequestStatusEnded:          nil,
}

// ParseRequestStatus rejects values outside the closed set.
func ParseRequestStatus(s string) (RequestStatus, error) {
	status := RequestStatus(s)
	if _, ok := requestTransitions[status]; !ok {
		return "", fmt.Errorf("unknown request status %q", s)
	}
	return status, nil
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return contains(requestTransitions[s], next)
}

// SourcesOf lists every status that may move to next.
func (next RequestStatus) SourcesOf() []RequestStatus {
	var out []RequestStatus
	for from, targets := range requestTransitions {
		if contains(targets, next) {
			out = append(out, from)
		}
	}
	return out
}

// Request is one tutoring need raised by a student or parent.
type Request struct {
	ID           int64         `json:"id"`
	RequesterID  int64         `json:"requester_id"`
	Subject      string        `json:"subject"`
	Level        string        `json:"level"`
	Timezone     string        `json:"timezone"`
	Availability string        `json:"availability"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Location falls back to UTC when the stored zone is empty or unknown.
func (r *Request) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
