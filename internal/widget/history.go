package widget

import (
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"focusflow/internal/model"
	"focusflow/internal/timer"
)

const notesWidth = 32

// HistoryPanel lists sessions newest first. The row of the session the store
// is currently running shows the live clock from the store.
type HistoryPanel struct {
	Sessions []model.FocusSession
	Location *time.Location
}

func (p HistoryPanel) Render(v timer.View) string {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Started", "Task", "Status", "Duration", "Rating", "Notes"})

	for _, s := range p.Sessions {
		duration := "-"
		if s.Duration != nil {
			duration = FormatMinutes(*s.Duration)
		}
		if s.Status == model.SessionActive && s.ID == v.SessionID && active(v) {
			duration = FormatClock(v.DisplaySeconds)
		}
		task := "-"
		if s.TaskID != nil {
			task = *s.TaskID
		}
		notes := ""
		if s.Notes != nil {
			notes = text.Trim(strings.ReplaceAll(*s.Notes, "\n", " "), notesWidth)
		}
		tw.AppendRow(table.Row{
			s.StartTime.In(loc).Format("2006-01-02 15:04"),
			task,
			StatusLabel(s.Status),
			duration,
			ratingLabel(s.Rating),
			notes,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	out := tw.Render()
	if goal := goalLine(TodayMinutes(p.Sessions, v.At, loc), v.DailyGoalMinutes); goal != "" {
		out += "\n" + goal
	}
	return out
}

// TodayMinutes sums credited minutes of closed sessions started on now's
// calendar day in loc.
func TodayMinutes(sessions []model.FocusSession, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	total := 0
	for _, s := range sessions {
		if !model.IsTerminalStatus(s.Status) || s.Duration == nil {
			continue
		}
		if s.StartTime.Before(dayStart) || !s.StartTime.Before(dayEnd) {
			continue
		}
		total += *s.Duration
	}
	return total
}

// StatusLabel is the display form of a session status.
func StatusLabel(status string) string {
	if status == "" {
		return ""
	}
	return cases.Title(language.Und).String(status)
}

func ratingLabel(r *int) string {
	if r == nil {
		return ""
	}
	return strconv.Itoa(*r) + "/5"
}
