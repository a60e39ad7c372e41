package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
)

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	"вс": 0, "пн": 1, "вт": 2, "ср": 3, "чт": 4, "пт": 5, "сб": 6,
}

// splitCommand "/verify@tutorflow_bot 12" -> "verify", ["12"]
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:]
}

func parseID(arg, name string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s должен быть положительным числом, получено %q", name, arg)
	}
	return id, nil
}

// parseDays "1,3" или "mon,wed" или "пн,ср"
func parseDays(arg string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(arg, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if d, ok := weekdayNames[part]; ok {
			days = append(days, d)
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("неизвестный день недели %q", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("не указаны дни недели")
	}
	return days, nil
}

// parsePattern <tz> <days> <HH:MM> <minutes>
func parsePattern(args []string) (*model.SchedulePattern, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("ожидается: <часовой пояс> <дни> <ЧЧ:ММ> <минуты>")
	}
	days, err := parseDays(args[1])
	if err != nil {
		return nil, err
	}
	mins, err := strconv.Atoi(args[3])
	if err != nil {
		return nil, fmt.Errorf("длительность должна быть числом минут, получено %q", args[3])
	}
	p := &model.SchedulePattern{
		Timezone:     args[0],
		Days:         days,
		Time:         args[2],
		DurationMins: mins,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// parseLocalStart "2024-03-05" "18:30" в поясе loc
func parseLocalStart(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("дата должна быть в формате ГГГГ-ММ-ДД, получено %q", date)
	}
	hour, minute, err := model.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}

func parseSessionStatus(arg string) (model.SessionStatus, error) {
	switch strings.ToLower(arg) {
	case "done", "ok", "проведено":
		return model.SessionStatusDone, nil
	case "no_show_student", "student":
		return model.SessionStatusNoShowStudent, nil
	case "no_show_tutor", "tutor":
		return model.SessionStatusNoShowTutor, nil
	case "rescheduled", "перенесено":
		// только отметка; новое время задаётся через /reschedule
		return model.SessionStatusRescheduled, nil
	}
	return "", fmt.Errorf("статус должен быть done, no_show_student, no_show_tutor или rescheduled")
}

func restText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
