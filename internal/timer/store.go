package timer

import (
	"log/slog"
	"sync"
	"time"

	"focusflow/internal/logging"
)

// Store is the single shared timer state container. Every mutation goes
// through its methods; subscribers receive a copy of the new state after each
// change. Instances are independent, so tests build one per case.
type Store struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int

	clock   Clock
	storage SnapshotStorage
	logger  *slog.Logger

	persistMu sync.Mutex
}

type Option func(*Store)

func WithClock(clock Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithStorage enables durable snapshots of the state.
func WithStorage(storage SnapshotStorage) Option {
	return func(s *Store) { s.storage = storage }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithDefaults sets the initial mode, countdown length and daily goal.
// Invalid values are ignored.
func WithDefaults(mode Mode, durationMinutes, dailyGoalMinutes int) Option {
	return func(s *Store) {
		if mode.Valid() {
			s.state.Mode = mode
		}
		if IsAllowedDuration(durationMinutes) {
			s.state.SelectedDuration = durationMinutes
			s.state.TimeInSeconds = durationMinutes * 60
		}
		if dailyGoalMinutes >= 0 {
			s.state.DailyGoalMinutes = dailyGoalMinutes
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		state:  defaultState(),
		subs:   make(map[int]func(State)),
		clock:  SystemClock{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Clock() Clock {
	return s.clock
}

// State returns a copy of the raw state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View derives display values at the clock's current time.
func (s *Store) View() View {
	return s.ViewAt(s.clock.Now())
}

func (s *Store) ViewAt(now time.Time) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.View(now)
}

// Subscribe registers fn for every state change and returns its cancel func.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetMode switches between countdown and stopwatch. No-op while a run is in
// progress.
func (s *Store) SetMode(mode Mode) bool {
	if !mode.Valid() {
		return false
	}
	return s.mutate(func(st *State) bool {
		if st.IsRunning || st.Active || st.Mode == mode {
			return false
		}
		st.Mode = mode
		st.TimerStartTime = time.Time{}
		st.TimeInSeconds = st.plannedSeconds()
		st.ChronometerTime = 0
		return true
	})
}

// SetSelectedDuration picks a countdown length from the menu. Only effective
// in countdown mode while not running.
func (s *Store) SetSelectedDuration(minutes int) bool {
	if !IsAllowedDuration(minutes) {
		return false
	}
	return s.mutate(func(st *State) bool {
		if st.IsRunning || st.Active || st.Mode != ModeTimer {
			return false
		}
		st.SelectedDuration = minutes
		st.TimeInSeconds = minutes * 60
		return true
	})
}

// SetIsRunning flips the run flag only. Callers own the anchor.
func (s *Store) SetIsRunning(running bool) bool {
	return s.mutate(func(st *State) bool {
		if st.IsRunning == running {
			return false
		}
		st.IsRunning = running
		return true
	})
}

func (s *Store) SetTimerStartTime(anchor time.Time) bool {
	return s.mutate(func(st *State) bool {
		if st.TimerStartTime.Equal(anchor) {
			return false
		}
		st.TimerStartTime = anchor
		return true
	})
}

func (s *Store) SetCurrentSessionID(id string) bool {
	return s.mutate(func(st *State) bool {
		if st.CurrentSessionID == id {
			return false
		}
		st.CurrentSessionID = id
		return true
	})
}

// BindSessionID records the remote id only if run is still the current run
// and no id is bound yet. A late create response for a run that was already
// stopped is rejected.
func (s *Store) BindSessionID(run uint64, id string) bool {
	return s.mutate(func(st *State) bool {
		if !st.Active || st.Run != run || st.CurrentSessionID != "" {
			return false
		}
		st.CurrentSessionID = id
		return true
	})
}

func (s *Store) SetActiveTask(id, name string) bool {
	return s.mutate(func(st *State) bool {
		if st.ActiveTaskID == id && st.ActiveTaskName == name {
			return false
		}
		st.ActiveTaskID = id
		st.ActiveTaskName = name
		return true
	})
}

func (s *Store) SetDailyGoal(minutes int) bool {
	if minutes < 0 {
		return false
	}
	return s.mutate(func(st *State) bool {
		if st.DailyGoalMinutes == minutes {
			return false
		}
		st.DailyGoalMinutes = minutes
		return true
	})
}

// StartRun marks a fresh run anchored at anchor and returns its run number.
// The remote id is unknown until BindSessionID.
func (s *Store) StartRun(anchor time.Time) (uint64, bool) {
	var run uint64
	ok := s.mutate(func(st *State) bool {
		if st.Active {
			return false
		}
		st.Run++
		run = st.Run
		st.Active = true
		st.IsRunning = true
		st.TimerStartTime = anchor
		st.CurrentSessionID = ""
		st.TimeInSeconds = st.plannedSeconds()
		st.ChronometerTime = 0
		return true
	})
	return run, ok
}

// ResumeRun restores a run that started at anchor, in the given mode and
// countdown length, bound to an already known session.
func (s *Store) ResumeRun(mode Mode, durationMinutes int, anchor time.Time, sessionID string) uint64 {
	var run uint64
	s.mutate(func(st *State) bool {
		st.Run++
		run = st.Run
		st.Mode = mode
		if mode == ModeTimer && durationMinutes > 0 {
			st.SelectedDuration = durationMinutes
		}
		st.Active = true
		st.IsRunning = true
		st.TimerStartTime = anchor
		st.CurrentSessionID = sessionID
		st.TimeInSeconds = st.plannedSeconds()
		st.ChronometerTime = 0
		return true
	})
	return run
}

// Pause folds the derived value into the stored fallback and clears the
// anchor. The session stays bound.
func (s *Store) Pause() bool {
	now := s.clock.Now()
	return s.mutate(func(st *State) bool {
		if !st.IsRunning {
			return false
		}
		if st.Mode == ModeChronometer {
			st.ChronometerTime = st.elapsedSeconds(now)
		} else {
			st.TimeInSeconds = st.remainingSeconds(now)
		}
		st.IsRunning = false
		st.TimerStartTime = time.Time{}
		return true
	})
}

// Resume re-anchors a paused run so that now - anchor equals the time already
// accumulated.
func (s *Store) Resume() bool {
	now := s.clock.Now()
	return s.mutate(func(st *State) bool {
		if st.IsRunning || !st.Active {
			return false
		}
		elapsed := st.elapsedSeconds(now)
		st.IsRunning = true
		st.TimerStartTime = now.Add(-time.Duration(elapsed) * time.Second)
		return true
	})
}

// ResetTimer stops the run and restores the idle display for the current mode.
func (s *Store) ResetTimer() {
	s.mutate(func(st *State) bool {
		if st.Active {
			st.Run++
		}
		st.Active = false
		st.IsRunning = false
		st.TimerStartTime = time.Time{}
		st.CurrentSessionID = ""
		if st.Mode == ModeChronometer {
			st.ChronometerTime = 0
		} else {
			st.TimeInSeconds = st.plannedSeconds()
		}
		return true
	})
}

// SyncTimerState recomputes the displayed values from the anchor right now
// and publishes them. Used when the process wakes up after being suspended.
func (s *Store) SyncTimerState() View {
	now := s.clock.Now()
	var view View
	s.mutate(func(st *State) bool {
		view = st.View(now)
		if !st.IsRunning {
			return false
		}
		if st.Mode == ModeChronometer {
			st.ChronometerTime = view.ElapsedSeconds
		} else {
			st.TimeInSeconds = view.RemainingSeconds
		}
		return true
	})
	return view
}

func (s *Store) mutate(fn func(*State) bool) bool {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	current := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	s.persist()
	for _, sub := range subs {
		sub(current)
	}
	return true
}

// persist writes the latest state, or clears the snapshot once idle.
func (s *Store) persist() {
	if s.storage == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	state := s.State()
	if state.isDefault() {
		if err := s.storage.Clear(); err != nil {
			s.logger.Warn("clear timer snapshot", "error", err)
		}
		return
	}
	if err := s.storage.Save(snapshotFromState(state, s.clock.Now())); err != nil {
		s.logger.Warn("save timer snapshot", "error", err)
	}
}

// Flush forces a snapshot write, as on process exit.
func (s *Store) Flush() {
	s.persist()
}
