package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks/common/formatting"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/service"
)

var sessionStatusEmoji = map[model.SessionStatus]string{
	model.SessionStatusScheduled:     "🗓",
	model.SessionStatusRescheduled:   "🔁",
	model.SessionStatusDone:          "✅",
	model.SessionStatusNoShowStudent: "🚫",
	model.SessionStatusNoShowTutor:   "⚠️",
}

// formatSession одна строка списка; время в поясе шаблона
func formatSession(s *model.Session, loc *time.Location) string {
	start, end := s.ScheduledStartUTC.In(loc), s.ScheduledEndUTC.In(loc)
	line := fmt.Sprintf("%s #%d %s %s (%s)",
		sessionStatusEmoji[s.Status],
		s.ID,
		start.Format("Mon 02.01"),
		formatting.FormatTimeRange(start, end),
		s.Status,
	)
	if s.Notes != nil && *s.Notes != "" {
		line += " · " + *s.Notes
	}
	return line
}

func formatSessions(match *model.Match, sessions []*model.Session) string {
	loc := matchLocation(match)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 Матч #%d, занятий: %d (%s)\n\n", match.ID, len(sessions), loc)
	for _, s := range sessions {
		sb.WriteString(formatSession(s, loc))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatPackage(p *model.Package) string {
	if p == nil {
		return "нет активного пакета"
	}
	return fmt.Sprintf("пакет #%d: %d/%d, до %s", p.ID, p.SessionsUsed, p.TierSessions, p.LastDay())
}

func formatEngagement(e *service.Engagement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Заявка #%d: %s (%s)\n", e.Request.ID, e.Request.Subject, e.Request.Status)
	fmt.Fprintf(&sb, "💳 %s\n", formatPackage(e.ActivePackage()))
	if e.Match != nil {
		fmt.Fprintf(&sb, "👩‍🏫 Матч #%d, преподаватель %d (%s), занятий: %d\n",
			e.Match.ID, e.Match.TutorID, e.Match.Status, len(e.Sessions))
	}
	return sb.String()
}

func matchLocation(match *model.Match) *time.Location {
	if match != nil && match.SchedulePattern != nil {
		if loc, err := match.SchedulePattern.Location(); err == nil {
			return loc
		}
	}
	return time.UTC
}
