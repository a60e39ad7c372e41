package report

import (
	"fmt"
	"io"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	SessionsSheet = "Sessions"
	PackagesSheet = "Packages"
)

// Ledger данные для выгрузки по одному матчу
type Ledger struct {
	Request  *model.Request
	Match    *model.Match
	Packages []*model.Package
	Sessions []*model.Session
}

var sessionHeader = []interface{}{
	"session_id",
	"generation_id",
	"start_local",
	"start_utc",
	"end_utc",
	"status",
	"notes",
}

var packageHeader = []interface{}{
	"package_id",
	"tier_sessions",
	"sessions_used",
	"remaining",
	"start_date",
	"last_day",
	"status",
}

// WriteLedger пишет xlsx с листами занятий и пакетов
func WriteLedger(w io.Writer, l Ledger) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SessionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(PackagesSheet); err != nil {
		return fmt.Errorf("create packages sheet: %w", err)
	}

	// время занятий показываем в поясе шаблона, если он задан
	loc := time.UTC
	if l.Match != nil && l.Match.SchedulePattern != nil {
		if pl, err := l.Match.SchedulePattern.Location(); err == nil {
			loc = pl
		}
	}

	rows := make([][]interface{}, 0, len(l.Sessions))
	for _, s := range l.Sessions {
		notes := ""
		if s.Notes != nil {
			notes = *s.Notes
		}
		rows = append(rows, []interface{}{
			s.ID,
			s.GenerationID.String(),
			s.ScheduledStartUTC.In(loc).Format("2006-01-02 15:04 MST"),
			s.ScheduledStartUTC.UTC().Format(time.RFC3339),
			s.ScheduledEndUTC.UTC().Format(time.RFC3339),
			string(s.Status),
			notes,
		})
	}
	if err := writeRows(f, SessionsSheet, sessionHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, p := range l.Packages {
		start, last := "", ""
		if !p.StartDate.IsZero() {
			start = p.StartDate.String()
			last = p.LastDay().String()
		}
		rows = append(rows, []interface{}{
			p.ID,
			int(p.TierSessions),
			p.SessionsUsed,
			p.Remaining(),
			start,
			last,
			string(p.Status),
		})
	}
	if err := writeRows(f, PackagesSheet, packageHeader, rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// FileName имя файла выгрузки
func FileName(matchID int64, now time.Time) string {
	return fmt.Sprintf("ledger_match_%d_%s.xlsx", matchID, now.UTC().Format("20060102_150405"))
}
