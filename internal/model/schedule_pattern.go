package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // зоны нужны и в контейнере без системной базы
)

// SchedulePattern is the weekly recurrence a match is taught on. The JSON shape is the
// persisted shape and is shared by match creation and session generation.
type SchedulePattern struct {
	Timezone     string `json:"timezone"`
	Days         []int  `json:"days"` // 0 = Sunday, 6 = Saturday
	Time         string `json:"time"` // "HH:MM", 24h
	DurationMins int    `json:"duration_mins"`
}

// Validate checks every field and returns the first problem found.
func (p *SchedulePattern) Validate() error {
	if p == nil {
		return fmt.Errorf("schedule pattern is missing")
	}
	if _, err := p.Location(); err != nil {
		return err
	}
	if len(p.Days) == 0 {
		return fmt.Errorf("schedule pattern days must not be empty")
	}
	seen := make(map[int]bool, len(p.Days))
	for _, d := range p.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("schedule pattern day %d out of range 0-6", d)
		}
		if seen[d] {
			return fmt.Errorf("schedule pattern day %d repeated", d)
		}
		seen[d] = true
	}
	if _, _, err := p.Clock(); err != nil {
		return err
	}
	if p.DurationMins <= 0 {
		return fmt.Errorf("schedule pattern duration must be positive, got %d", p.DurationMins)
	}
	return nil
}

// Location resolves the IANA zone.
func (p *SchedulePattern) Location() (*time.Location, error) {
	if strings.TrimSpace(p.Timezone) == "" {
		return nil, fmt.Errorf("schedule pattern timezone is required")
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// Clock parses Time into hour and minute.
func (p *SchedulePattern) Clock() (hour, minute int, err error) {
	return ParseClock(p.Time)
}

// Duration of one session.
func (p *SchedulePattern) Duration() time.Duration {
	return time.Duration(p.DurationMins) * time.Minute
}

// HasWeekday reports whether wd is one of the pattern days.
func (p *SchedulePattern) HasWeekday(wd time.Weekday) bool {
	return contains(p.Days, int(wd))
}

// Normalized returns a copy with sorted days, so equal patterns serialize identically.
func (p SchedulePattern) Normalized() SchedulePattern {
	days := append([]int(nil), p.Days...)
	sort.Ints(days)
	p.Days = days
	p.Timezone = strings.TrimSpace(p.Timezone)
	return p
}

// ParseClock parses a strict 24h "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
