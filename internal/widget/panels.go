package widget

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"focusflow/internal/timer"
)

// Renderer turns one View into display text.
type Renderer interface {
	Render(view timer.View) string
}

// Attach re-renders r to w whenever the store changes and returns the detach
// function. Unchanged output is not written again.
func Attach(store *timer.Store, w io.Writer, r Renderer) func() {
	var (
		mu   sync.Mutex
		last string
	)
	clock := store.Clock()
	write := func(view timer.View) {
		out := r.Render(view)
		mu.Lock()
		defer mu.Unlock()
		if out == last {
			return
		}
		last = out
		if out != "" {
			fmt.Fprintln(w, out)
		}
	}
	write(store.View())
	return store.Subscribe(func(st timer.State) {
		write(st.View(clock.Now()))
	})
}

func active(v timer.View) bool {
	return v.IsRunning || v.Paused
}

func stateGlyph(v timer.View) string {
	switch {
	case v.IsRunning:
		return "▶"
	case v.Paused:
		return "❚❚"
	default:
		return "■"
	}
}

func modeLabel(v timer.View) string {
	if v.Mode == timer.ModeChronometer {
		return "Stopwatch"
	}
	return fmt.Sprintf("Countdown %s", FormatMinutes(v.SelectedDuration))
}

// InlinePanel is the timer as shown on one task's page. When a run belongs to
// another task it says so instead of showing a second clock.
type InlinePanel struct {
	TaskID       string
	TaskName     string
	TodayMinutes int
}

func (p InlinePanel) Render(v timer.View) string {
	lines := make([]string, 0, 3)
	if p.TaskName != "" {
		lines = append(lines, p.TaskName)
	}

	if active(v) && p.TaskID != "" && v.TaskID != p.TaskID {
		other := v.TaskName
		if other == "" {
			other = "another task"
		}
		lines = append(lines, fmt.Sprintf("Focus is running on %s", other))
	} else {
		line := fmt.Sprintf("%s %s  %s", stateGlyph(v), FormatClock(v.DisplaySeconds), modeLabel(v))
		if v.Paused {
			line += " (paused)"
		}
		lines = append(lines, line)
	}

	if goal := goalLine(p.TodayMinutes, v.DailyGoalMinutes); goal != "" {
		lines = append(lines, goal)
	}
	return strings.Join(lines, "\n")
}

// FloatingWidget is the compact app-wide indicator. It renders nothing while
// idle.
type FloatingWidget struct{}

func (FloatingWidget) Render(v timer.View) string {
	if !active(v) {
		return ""
	}
	out := stateGlyph(v) + " " + FormatClock(v.DisplaySeconds)
	if v.TaskName != "" {
		out += " · " + v.TaskName
	} else if v.TaskID != "" {
		out += " · " + v.TaskID
	}
	return out
}
