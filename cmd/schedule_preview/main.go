// schedule_preview печатает занятия, которые сгенерирует шаблон за период.
//
//	go run ./cmd/schedule_preview -tz Asia/Karachi -days 1,3 -time 18:00 -from 2024-03-01 -to 2024-03-30 -cap 8
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/schedule"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("schedule_preview", flag.ContinueOnError)
	fs.SetOutput(out)
	tz := fs.String("tz", "UTC", "IANA timezone of the pattern")
	days := fs.String("days", "", "weekdays, comma separated, 0=Sunday")
	clock := fs.String("time", "", "local start time HH:MM")
	mins := fs.Int("duration", 60, "session length in minutes")
	from := fs.String("from", "", "first day YYYY-MM-DD")
	to := fs.String("to", "", "last day YYYY-MM-DD, inclusive")
	capCount := fs.Int("cap", 20, "maximum number of sessions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	weekdays, err := parseDays(*days)
	if err != nil {
		return err
	}
	start, err := model.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("parse -from: %w", err)
	}
	end, err := model.ParseDate(*to)
	if err != nil {
		return fmt.Errorf("parse -to: %w", err)
	}

	pattern := model.SchedulePattern{Timezone: *tz, Days: weekdays, Time: *clock, DurationMins: *mins}
	seq, err := schedule.Generate(pattern, start, end, *capCount)
	if err != nil {
		return err
	}
	loc, err := pattern.Location()
	if err != nil {
		return err
	}

	n := 0
	for slot := range seq {
		n++
		fmt.Fprintf(out, "%2d  %s  %s  (%s UTC)\n",
			n,
			slot.Start.In(loc).Format("Mon 2006-01-02 15:04"),
			slot.End.In(loc).Format("15:04"),
			slot.Start.UTC().Format("2006-01-02 15:04"),
		)
	}
	fmt.Fprintf(out, "total: %d\n", n)
	return nil
}

func parseDays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("-days is required")
	}
	var days []int
	for _, part := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad weekday %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}
