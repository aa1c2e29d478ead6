package focus_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"focusflow/internal/focus"
	"focusflow/internal/model"
	"focusflow/internal/timer"
)

const testUser = "user-1"

var epoch = time.Date(2026, 5, 11, 14, 0, 0, 0, time.UTC)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.FocusSession
	seq      int
	clock    timer.Clock

	createGate  chan struct{}
	createCalls atomic.Int32

	failCreate error
	failUpdate error
	failList   error
}

func newMemRepo(clock timer.Clock) *memRepo {
	return &memRepo{sessions: make(map[string]*model.FocusSession), clock: clock}
}

func (r *memRepo) CreateSession(ctx context.Context, input model.NewSession) (*model.FocusSession, error) {
	r.createCalls.Add(1)
	if r.createGate != nil {
		select {
		case <-r.createGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return nil, r.failCreate
	}
	r.seq++
	now := r.clock.Now()
	start := now
	if input.StartTime != nil {
		start = *input.StartTime
	}
	status := input.Status
	if status == "" {
		status = model.SessionActive
	}
	s := &model.FocusSession{
		ID:        fmt.Sprintf("s-%d", r.seq),
		UserID:    input.UserID,
		TaskID:    input.TaskID,
		StartTime: start,
		Duration:  input.Duration,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.FocusSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	out := make([]model.FocusSession, 0)
	for _, s := range r.sessions {
		if s.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r *memRepo) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.FocusSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return nil, r.failUpdate
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, focus.ErrSessionNotFound)
	}
	if model.IsTerminalStatus(s.Status) && patch.TouchesClosure() {
		return nil, fmt.Errorf("update %s: %w", id, focus.ErrSessionClosed)
	}
	if patch.ClearTask {
		s.TaskID = nil
	} else if patch.TaskID != nil {
		s.TaskID = model.StringPtr(*patch.TaskID)
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.EndTime != nil {
		s.EndTime = model.TimePtr(*patch.EndTime)
	}
	if patch.Duration != nil {
		s.Duration = model.IntPtr(*patch.Duration)
	}
	if patch.Notes != nil {
		s.Notes = model.StringPtr(*patch.Notes)
	}
	if patch.Rating != nil {
		s.Rating = model.IntPtr(*patch.Rating)
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return focus.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// seed inserts a session directly, bypassing the controller.
func (r *memRepo) seed(s model.FocusSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.UserID == "" {
		s.UserID = testUser
	}
	r.sessions[s.ID] = &s
}

func (r *memRepo) get(t *testing.T, id string) model.FocusSession {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		t.Fatalf("session %s not found", id)
	}
	return *s
}

func (r *memRepo) countStatus(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.Status == status {
			n++
		}
	}
	return n
}

type recordingFinalizer struct {
	mu    sync.Mutex
	calls map[string]model.Finalization
}

func (f *recordingFinalizer) FinalizeSession(id string, fin model.Finalization) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]model.Finalization)
	}
	f.calls[id] = fin
}

type noticeLog struct {
	mu      sync.Mutex
	notices []focus.Notice
}

func (n *noticeLog) Notify(notice focus.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) errors() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, notice := range n.notices {
		if notice.Level == focus.LevelError {
			count++
		}
	}
	return count
}

type harness struct {
	clock     *timer.ManualClock
	storage   *timer.MemoryStorage
	store     *timer.Store
	repo      *memRepo
	notices   *noticeLog
	finalizer *recordingFinalizer
	ctrl      *focus.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     timer.NewManualClock(epoch),
		storage:   &timer.MemoryStorage{},
		notices:   &noticeLog{},
		finalizer: &recordingFinalizer{},
	}
	h.repo = newMemRepo(h.clock)
	h.store = timer.NewStore(timer.WithClock(h.clock), timer.WithStorage(h.storage))
	h.ctrl = focus.NewController(h.store, h.repo, testUser,
		focus.WithNotifier(h.notices),
		focus.WithFinalizer(h.finalizer),
	)
	return h
}

// reload simulates a new process on the same profile and remote data.
func (h *harness) reload() {
	h.store = timer.NewStore(timer.WithClock(h.clock), timer.WithStorage(h.storage))
	h.ctrl = focus.NewController(h.store, h.repo, testUser,
		focus.WithNotifier(h.notices),
		focus.WithFinalizer(h.finalizer),
	)
}
