package model

import (
	"fmt"
	"time"
)

type PackageStatus string

const (
	PackageStatusPending PackageStatus = "pending"
	PackageStatusActive  PackageStatus = "active"
	PackageStatusExpired PackageStatus = "expired"
)

var packageTransitions = map[PackageStatus][]PackageStatus{
	PackageStatusPending: {PackageStatusActive},
	PackageStatusActive:  {PackageStatusExpired},
	PackageStatusExpired: nil,
}

func ParsePackageStatus(s string) (PackageStatus, error) {
	status := PackageStatus(s)
	if _, ok := packageTransitions[status]; !ok {
		return "", fmt.Errorf("unknown package status %q", s)
	}
	return status, nil
}

func (s PackageStatus) CanTransitionTo(next PackageStatus) bool {
	return contains(packageTransitions[s], next)
}

// Tier is the monthly session entitlement of a package.
type Tier int

const (
	Tier8  Tier = 8
	Tier12 Tier = 12
	Tier20 Tier = 20
)

// ParseTier accepts only the offered tiers.
func ParseTier(n int) (Tier, error) {
	switch Tier(n) {
	case Tier8, Tier12, Tier20:
		return Tier(n), nil
	}
	return 0, fmt.Errorf("unsupported tier %d: must be one of 8, 12, 20", n)
}

// Package is one month of entitlement for a request.
type Package struct {
	ID           int64         `json:"id"`
	RequestID    int64         `json:"request_id"`
	TierSessions Tier          `json:"tier_sessions"`
	SessionsUsed int           `json:"sessions_used"`
	StartDate    Date          `json:"start_date"`
	EndDate      Date          `json:"end_date"` // exclusive
	Status       PackageStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Remaining is the unconsumed entitlement.
func (p *Package) Remaining() int {
	if left := int(p.TierSessions) - p.SessionsUsed; left > 0 {
		return left
	}
	return 0
}

// LastDay is the final day inside the half-open [StartDate, EndDate) window.
func (p *Package) LastDay() Date {
	return p.EndDate.AddDays(-1)
}
