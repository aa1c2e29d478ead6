package timer

import "time"

type Mode string

const (
	ModeTimer       Mode = "timer"
	ModeChronometer Mode = "chronometer"
)

func (m Mode) Valid() bool {
	return m == ModeTimer || m == ModeChronometer
}

const (
	DefaultDurationMinutes = 25
	minDurationMinutes     = 5
	maxDurationMinutes     = 60
	durationStepMinutes    = 5
)

// DurationMenu lists the countdown lengths a user may pick, in minutes.
func DurationMenu() []int {
	menu := make([]int, 0, maxDurationMinutes/durationStepMinutes)
	for m := minDurationMinutes; m <= maxDurationMinutes; m += durationStepMinutes {
		menu = append(menu, m)
	}
	return menu
}

func IsAllowedDuration(minutes int) bool {
	return minutes >= minDurationMinutes && minutes <= maxDurationMinutes && minutes%durationStepMinutes == 0
}

// State is the local timer record. While IsRunning the displayed values are
// derived from TimerStartTime; TimeInSeconds and ChronometerTime are only the
// fallback shown when stopped or paused.
//
// Active is true from start until the run is completed, interrupted or reset,
// including while paused. Run identifies the current run within this process.
type State struct {
	Mode             Mode
	IsRunning        bool
	Active           bool
	Run              uint64
	SelectedDuration int
	TimeInSeconds    int
	ChronometerTime  int
	TimerStartTime   time.Time
	CurrentSessionID string
	ActiveTaskID     string
	ActiveTaskName   string
	DailyGoalMinutes int
}

func defaultState() State {
	return State{
		Mode:             ModeTimer,
		SelectedDuration: DefaultDurationMinutes,
		TimeInSeconds:    DefaultDurationMinutes * 60,
	}
}

func (s State) plannedSeconds() int {
	return s.SelectedDuration * 60
}

// elapsedSeconds is the active run time at now, whole seconds.
func (s State) elapsedSeconds(now time.Time) int {
	if s.IsRunning && !s.TimerStartTime.IsZero() {
		delta := now.Sub(s.TimerStartTime)
		if delta < 0 {
			return 0
		}
		return int(delta / time.Second)
	}
	if s.Mode == ModeChronometer {
		return s.ChronometerTime
	}
	elapsed := s.plannedSeconds() - s.TimeInSeconds
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (s State) remainingSeconds(now time.Time) int {
	if s.Mode == ModeChronometer {
		return 0
	}
	if !s.IsRunning || s.TimerStartTime.IsZero() {
		if s.TimeInSeconds < 0 {
			return 0
		}
		return s.TimeInSeconds
	}
	remaining := s.plannedSeconds() - s.elapsedSeconds(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// isDefault reports whether there is nothing worth persisting.
func (s State) isDefault() bool {
	if s.IsRunning || s.Active || s.CurrentSessionID != "" {
		return false
	}
	if s.Mode == ModeChronometer {
		return s.ChronometerTime == 0
	}
	return s.TimeInSeconds == s.plannedSeconds()
}

// View is the derived, display-ready projection of State at one instant.
type View struct {
	Mode             Mode
	IsRunning        bool
	Paused           bool
	Run              uint64
	SelectedDuration int
	RemainingSeconds int
	ElapsedSeconds   int
	// DisplaySeconds is what a clock face shows: remaining for a countdown,
	// elapsed for a stopwatch.
	DisplaySeconds   int
	Expired          bool
	Anchor           time.Time
	SessionID        string
	TaskID           string
	TaskName         string
	DailyGoalMinutes int
	At               time.Time
}

func (s State) View(now time.Time) View {
	elapsed := s.elapsedSeconds(now)
	remaining := s.remainingSeconds(now)
	display := remaining
	if s.Mode == ModeChronometer {
		display = elapsed
	}
	return View{
		Mode:             s.Mode,
		IsRunning:        s.IsRunning,
		Run:              s.Run,
		Paused:           s.Active && !s.IsRunning,
		SelectedDuration: s.SelectedDuration,
		RemainingSeconds: remaining,
		ElapsedSeconds:   elapsed,
		DisplaySeconds:   display,
		Expired:          s.IsRunning && s.Mode == ModeTimer && remaining == 0,
		Anchor:           s.TimerStartTime,
		SessionID:        s.CurrentSessionID,
		TaskID:           s.ActiveTaskID,
		TaskName:         s.ActiveTaskName,
		DailyGoalMinutes: s.DailyGoalMinutes,
		At:               now,
	}
}
