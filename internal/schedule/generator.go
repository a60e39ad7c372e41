// Package schedule разворачивает недельный шаблон в конкретные занятия.
package schedule

import (
	"fmt"
	"iter"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
)

// Slot одно занятие в UTC
type Slot struct {
	Start time.Time `json:"start_utc"`
	End   time.Time `json:"end_utc"`
}

// Generate проверяет входные данные и возвращает ленивую последовательность занятий.
// Дни от start до end включительно берутся в часовом поясе шаблона, выдача
// прекращается после capCount занятий.
func Generate(p model.SchedulePattern, start, end model.Date, capCount int) (iter.Seq[Slot], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("date range is required")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s is before start %s", end, start)
	}
	if capCount < 0 {
		return nil, fmt.Errorf("cap must not be negative, got %d", capCount)
	}

	loc, _ := p.Location()
	hour, minute, _ := p.Clock()
	duration := p.Duration()

	return func(yield func(Slot) bool) {
		produced := 0
		for day := start; !day.After(end) && produced < capCount; day = day.AddDays(1) {
			if !p.HasWeekday(day.Weekday()) {
				continue
			}

			// Локальное время в поясе шаблона: при переходе на летнее время
			// сохраняется время на часах, а не смещение.
			localStart := time.Date(day.Year, day.Month, day.Day, hour, minute, 0, 0, loc)
			slot := Slot{
				Start: localStart.UTC(),
				End:   localStart.Add(duration).UTC(),
			}

			produced++
			if !yield(slot) {
				return
			}
		}
	}, nil
}

// Collect materializes the sequence.
func Collect(seq iter.Seq[Slot]) []Slot {
	var out []Slot
	for slot := range seq {
		out = append(out, slot)
	}
	return out
}

// Window возвращает включительный диапазон поиска для пакета: с более поздней из дат
// (начало пакета, сегодня в поясе шаблона) по последний день пакета.
func Window(pkg *model.Package, p model.SchedulePattern, now time.Time) (model.Date, model.Date, error) {
	loc, err := p.Location()
	if err != nil {
		return model.Date{}, model.Date{}, err
	}
	start := pkg.StartDate
	if today := model.DateOf(now.In(loc)); today.After(start) {
		start = today
	}
	return start, pkg.LastDay(), nil
}
