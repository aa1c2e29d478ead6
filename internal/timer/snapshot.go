package timer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Snapshot is the persisted form of State. StartTime is epoch milliseconds.
type Snapshot struct {
	Mode             Mode   `json:"mode"`
	IsRunning        bool   `json:"isRunning"`
	Active           bool   `json:"active,omitempty"`
	TimeInSeconds    int    `json:"timeInSeconds"`
	ChronometerTime  int    `json:"chronometerTime"`
	SelectedDuration int    `json:"selectedDuration"`
	StartTime        int64  `json:"startTime,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	TaskID           string `json:"taskId,omitempty"`
	TaskName         string `json:"taskName,omitempty"`
	SavedAt          int64  `json:"savedAt,omitempty"`
}

func snapshotFromState(st State, now time.Time) Snapshot {
	snap := Snapshot{
		Mode:             st.Mode,
		IsRunning:        st.IsRunning,
		Active:           st.Active,
		TimeInSeconds:    st.TimeInSeconds,
		ChronometerTime:  st.ChronometerTime,
		SelectedDuration: st.SelectedDuration,
		SessionID:        st.CurrentSessionID,
		TaskID:           st.ActiveTaskID,
		TaskName:         st.ActiveTaskName,
		SavedAt:          now.UnixMilli(),
	}
	if !st.TimerStartTime.IsZero() {
		snap.StartTime = st.TimerStartTime.UnixMilli()
	}
	return snap
}

// Hydrate replaces the local state with snap. For a running snapshot the
// wall-clock time since the persisted anchor is folded into the displayed
// value, so the timer reads correctly no matter how long the process was gone.
func (s *Store) Hydrate(snap Snapshot) View {
	now := s.clock.Now()
	var view View
	s.mutate(func(st *State) bool {
		if snap.Mode.Valid() {
			st.Mode = snap.Mode
		}
		// A run bound to a session keeps whatever length the session was
		// started with, even one the menu does not offer.
		bound := snap.Active || snap.SessionID != ""
		if IsAllowedDuration(snap.SelectedDuration) || (bound && snap.SelectedDuration > 0) {
			st.SelectedDuration = snap.SelectedDuration
		}
		st.Run++
		st.IsRunning = snap.IsRunning && snap.StartTime > 0
		st.TimerStartTime = time.Time{}
		if snap.StartTime > 0 {
			st.TimerStartTime = time.UnixMilli(snap.StartTime)
		}
		st.TimeInSeconds = snap.TimeInSeconds
		st.ChronometerTime = snap.ChronometerTime
		st.CurrentSessionID = snap.SessionID
		st.ActiveTaskID = snap.TaskID
		st.ActiveTaskName = snap.TaskName
		st.Active = st.IsRunning || snap.Active || snap.SessionID != ""

		if st.IsRunning {
			derived := st.View(now)
			st.TimeInSeconds = derived.RemainingSeconds
			st.ChronometerTime = 0
			if st.Mode == ModeChronometer {
				st.ChronometerTime = derived.ElapsedSeconds
				st.TimeInSeconds = st.plannedSeconds()
			}
		}
		view = st.View(now)
		return true
	})
	return view
}

// LoadFrom hydrates the store from its storage. It reports false when no
// snapshot exists.
func (s *Store) LoadFrom() (View, bool, error) {
	if s.storage == nil {
		return s.View(), false, nil
	}
	snap, err := s.storage.Load()
	if err != nil {
		return s.View(), false, err
	}
	if snap == nil {
		return s.View(), false, nil
	}
	return s.Hydrate(*snap), true, nil
}

// SnapshotStorage is the durable local home of the timer snapshot. A nil
// snapshot from Load means idle.
type SnapshotStorage interface {
	Load() (*Snapshot, error)
	Save(Snapshot) error
	Clear() error
}

// FileStorage keeps the snapshot in a JSON file guarded by an advisory lock,
// so concurrent CLI invocations on the same profile never interleave writes.
type FileStorage struct {
	path string
	lock *flock.Flock
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, "timer.json")
	return &FileStorage{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load() (*Snapshot, error) {
	if err := f.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	defer f.lock.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (f *FileStorage) Save(snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	defer f.lock.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	defer f.lock.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// MemoryStorage keeps the snapshot in memory.
type MemoryStorage struct {
	mu   sync.Mutex
	snap *Snapshot
}

func (m *MemoryStorage) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	cp := *m.snap
	return &cp, nil
}

func (m *MemoryStorage) Save(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &snap
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
