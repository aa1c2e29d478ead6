// Package widget renders the shared timer store for the terminal. Every
// renderer reads the same derived View; none keeps its own clock.
package widget

import (
	"fmt"
	"strings"
)

// FormatClock renders seconds as H:MM:SS, or M:SS when under an hour.
// Negative input renders as zero.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatMinutes renders a credited duration.
func FormatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

// ProgressBar draws done/goal as a fixed-width bar.
func ProgressBar(done, goal, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if goal > 0 {
		filled = done * width / goal
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func goalLine(done, goal int) string {
	if goal <= 0 {
		return ""
	}
	percent := done * 100 / goal
	return fmt.Sprintf("Today %d/%d min %s %d%%", done, goal, ProgressBar(done, goal, 20), percent)
}
