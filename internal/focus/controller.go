package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusflow/internal/logging"
	"focusflow/internal/model"
	"focusflow/internal/timer"
)

// DefaultOrphanAge is how old an active session may be before it is treated
// as a crash artifact rather than a run to resume.
const DefaultOrphanAge = 24 * time.Hour

var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Controller keeps the local timer store and the remote session record in
// lockstep. Local transitions apply immediately; remote writes follow and
// their failures never stop the local timer.
type Controller struct {
	store     *timer.Store
	repo      SessionRepository
	finalizer Finalizer
	notifier  Notifier
	logger    *slog.Logger
	userID    string
	orphanAge time.Duration

	mu       sync.Mutex
	starting bool
	inflight map[uint64]struct{}
	pending  map[uint64]closure
}

// closure is the terminal write for one session.
type closure struct {
	status   string
	endTime  time.Time
	duration int
}

type Option func(*Controller)

func WithFinalizer(f Finalizer) Option {
	return func(c *Controller) { c.finalizer = f }
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithOrphanAge(age time.Duration) Option {
	return func(c *Controller) {
		if age > 0 {
			c.orphanAge = age
		}
	}
}

func NewController(store *timer.Store, repo SessionRepository, userID string, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		repo:      repo,
		logger:    logging.NewNop(),
		userID:    userID,
		orphanAge: DefaultOrphanAge,
		inflight:  make(map[uint64]struct{}),
		pending:   make(map[uint64]closure),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	return c
}

func (c *Controller) Store() *timer.Store {
	return c.store
}

type StartOptions struct {
	TaskID   string
	TaskName string
}

// Start begins a new run and creates its remote record. Any session still
// active for the user is interrupted first. A Start issued while another is
// creating its record, or while a run is in progress, does nothing.
func (c *Controller) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	if c.starting || c.store.State().Active {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	if opts.TaskID != "" || opts.TaskName != "" {
		c.store.SetActiveTask(opts.TaskID, opts.TaskName)
	}
	now := c.now()
	run, ok := c.store.StartRun(now)
	if !ok {
		c.starting = false
		c.mu.Unlock()
		return nil
	}
	c.inflight[run] = struct{}{}
	st := c.store.State()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	c.interruptActive(ctx, now)

	input := model.NewSession{
		UserID:    c.userID,
		Status:    model.SessionActive,
		StartTime: model.TimePtr(now),
	}
	if st.ActiveTaskID != "" {
		input.TaskID = model.StringPtr(st.ActiveTaskID)
	}
	if st.Mode == timer.ModeTimer {
		input.Duration = model.IntPtr(st.SelectedDuration)
	}

	created, err := c.repo.CreateSession(ctx, input)

	c.mu.Lock()
	delete(c.inflight, run)
	pending, hasPending := c.pending[run]
	delete(c.pending, run)
	if err != nil {
		c.mu.Unlock()
		c.report("Could not save the focus session; the timer keeps running locally", err)
		return fmt.Errorf("create session: %w", err)
	}
	bound := c.store.BindSessionID(run, created.ID)
	taskID := c.store.State().ActiveTaskID
	c.mu.Unlock()

	if bound {
		c.logger.Info("focus session started", "session_id", created.ID, "mode", string(st.Mode), "run", run)
		if taskID != derefString(created.TaskID) {
			return c.pushTask(ctx, created.ID, taskID)
		}
		return nil
	}

	// The run ended before its id arrived; close the record it produced.
	if !hasPending {
		end := c.now()
		pending = closure{
			status:   model.SessionInterrupted,
			endTime:  end,
			duration: timer.CreditedMinutes(int(end.Sub(now) / time.Second)),
		}
	}
	c.logger.Info("closing session created for a finished run", "session_id", created.ID, "status", pending.status)
	return c.closeRemote(ctx, created.ID, pending)
}

// Stop ends the current run at the user's request: a stopwatch completes, a
// countdown that has not reached zero is interrupted.
func (c *Controller) Stop(ctx context.Context) error {
	return c.endRun(ctx, c.store.State().Run, false)
}

// Complete is the tick loop's completion callback.
func (c *Controller) Complete(ctx context.Context, view timer.View) error {
	return c.endRun(ctx, view.Run, true)
}

func (c *Controller) Pause() bool {
	return c.store.Pause()
}

func (c *Controller) Resume() bool {
	return c.store.Resume()
}

// RebindTask links the current run to another task, or unlinks it when
// taskID is empty. The session status is untouched.
func (c *Controller) RebindTask(ctx context.Context, taskID, taskName string) error {
	c.mu.Lock()
	c.store.SetActiveTask(taskID, taskName)
	st := c.store.State()
	c.mu.Unlock()

	if !st.Active || st.CurrentSessionID == "" {
		return nil
	}
	return c.pushTask(ctx, st.CurrentSessionID, taskID)
}

// Annotate sets notes and/or a rating on a finished session. A session that
// no longer exists is ignored.
func (c *Controller) Annotate(ctx context.Context, sessionID string, notes *string, rating *int) error {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return ErrInvalidRating
	}
	if sessionID == "" || (notes == nil && rating == nil) {
		return nil
	}

	_, err := c.repo.UpdateSession(ctx, sessionID, model.SessionPatch{Notes: notes, Rating: rating})
	if errors.Is(err, ErrSessionNotFound) {
		c.logger.Info("annotate skipped, session gone", "session_id", sessionID)
		return nil
	}
	if err != nil {
		c.report("Could not save notes for the session", err)
		return fmt.Errorf("annotate session: %w", err)
	}
	return nil
}

// Recover reconciles local state with the user's active remote session.
// Orphans older than the orphan age are closed with zero duration; a younger
// one is resumed from its original start, or completed if its countdown ran
// out in the meantime.
func (c *Controller) Recover(ctx context.Context) error {
	c.mu.Lock()
	busy := c.starting
	c.mu.Unlock()
	if busy {
		return nil
	}

	sessions, err := c.repo.ListSessions(ctx, model.SessionFilter{UserID: c.userID, Status: model.SessionActive})
	if err != nil {
		c.report("Could not check for an unfinished focus session", err)
		return fmt.Errorf("list active sessions: %w", err)
	}

	now := c.now()
	if len(sessions) == 0 {
		c.dropClosedLocal()
		return nil
	}

	newest := sessions[0]
	for _, extra := range sessions[1:] {
		c.logger.Warn("closing duplicate active session", "session_id", extra.ID, "start_time", extra.StartTime)
		_ = c.closeRemote(ctx, extra.ID, c.orphanClosure(extra, now))
	}

	if now.Sub(newest.StartTime) > c.orphanAge {
		c.logger.Info("closing stale orphaned session", "session_id", newest.ID, "start_time", newest.StartTime)
		c.mu.Lock()
		if c.store.State().CurrentSessionID == newest.ID {
			c.store.ResetTimer()
		}
		c.mu.Unlock()
		return c.closeRemote(ctx, newest.ID, closure{
			status:   model.SessionInterrupted,
			endTime:  newest.StartTime,
			duration: 0,
		})
	}

	return c.restore(ctx, newest, now)
}

// Mount hydrates the store from its local snapshot and then reconciles it
// against the remote record. A failed reconciliation leaves the snapshot in
// charge.
func (c *Controller) Mount(ctx context.Context) (timer.View, error) {
	if _, _, err := c.store.LoadFrom(); err != nil {
		c.logger.Warn("load timer snapshot", "error", err)
	}

	recoverErr := c.Recover(ctx)
	if view := c.store.View(); view.Expired {
		if err := c.endRun(ctx, view.Run, true); err != nil && recoverErr == nil {
			recoverErr = err
		}
	}
	return c.store.View(), recoverErr
}

// Unload sends a best-effort interruption for a running session and clears
// the local run it closed. Nothing waits for confirmation. Without a
// finalizer, or before the session id is known, the snapshot is flushed so
// the next mount can reconcile.
func (c *Controller) Unload() {
	st := c.store.State()
	if !st.IsRunning || st.CurrentSessionID == "" || c.finalizer == nil {
		c.store.Flush()
		return
	}
	now := c.now()
	view := st.View(now)
	c.logger.Info("finalizing session on exit", "session_id", st.CurrentSessionID, "elapsed_seconds", view.ElapsedSeconds)
	c.finalizer.FinalizeSession(st.CurrentSessionID, model.Finalization{
		Status:   model.SessionInterrupted,
		EndTime:  now,
		Duration: timer.BeaconMinutes(view.ElapsedSeconds),
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.store.State(); cur.Run == st.Run && cur.CurrentSessionID == st.CurrentSessionID {
		c.store.ResetTimer()
	}
}

func (c *Controller) endRun(ctx context.Context, run uint64, natural bool) error {
	c.mu.Lock()
	st := c.store.State()
	if !st.Active || st.Run != run {
		c.mu.Unlock()
		return nil
	}
	now := c.now()
	view := st.View(now)
	if natural && !view.Expired {
		c.mu.Unlock()
		return nil
	}

	cl := closureFor(st, view, now)
	sessionID := st.CurrentSessionID
	c.store.ResetTimer()
	if sessionID == "" {
		if _, ok := c.inflight[run]; ok {
			c.pending[run] = cl
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.closeRemote(ctx, sessionID, cl); err != nil {
		return err
	}
	c.logger.Info("focus session ended", "session_id", sessionID, "status", cl.status, "duration", cl.duration)
	if cl.status == model.SessionCompleted {
		c.notifier.Notify(Notice{Level: LevelInfo, Message: fmt.Sprintf("Focus session complete: %d min", cl.duration)})
	}
	return nil
}

func (c *Controller) restore(ctx context.Context, s model.FocusSession, now time.Time) error {
	mode := timer.ModeChronometer
	planned := 0
	if s.Duration != nil && *s.Duration > 0 {
		mode = timer.ModeTimer
		planned = *s.Duration
	}
	taskID := derefString(s.TaskID)

	c.mu.Lock()
	st := c.store.State()
	tracking := st.Active && st.CurrentSessionID == s.ID && st.Mode == mode
	if tracking && st.IsRunning && mode == timer.ModeTimer && st.SelectedDuration != planned {
		c.logger.Warn("local countdown length disagrees with session",
			"session_id", s.ID, "local_minutes", st.SelectedDuration, "session_minutes", planned)
		tracking = false
	}
	if tracking {
		// Already tracking this session, possibly paused; local knows more.
		c.mu.Unlock()
		return nil
	}

	if mode == timer.ModeTimer {
		elapsed := int(now.Sub(s.StartTime) / time.Second)
		if planned*60-elapsed <= 0 {
			if st.CurrentSessionID == s.ID {
				c.store.ResetTimer()
			}
			c.mu.Unlock()
			c.logger.Info("completing session that finished while away", "session_id", s.ID)
			return c.closeRemote(ctx, s.ID, closure{
				status:   model.SessionCompleted,
				endTime:  s.StartTime.Add(time.Duration(planned) * time.Minute),
				duration: planned,
			})
		}
	}

	taskName := ""
	if st.ActiveTaskID == taskID {
		taskName = st.ActiveTaskName
	}
	run := c.store.ResumeRun(mode, planned, s.StartTime, s.ID)
	c.store.SetActiveTask(taskID, taskName)
	c.mu.Unlock()

	c.logger.Info("resumed active session", "session_id", s.ID, "mode", string(mode), "run", run)
	c.notifier.Notify(Notice{Level: LevelInfo, Message: "Resumed your focus session"})
	return nil
}

// dropClosedLocal resets a local run whose remote session is no longer
// active, for example after an exit finalizer reached the server.
func (c *Controller) dropClosedLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.store.State()
	if st.Active && st.CurrentSessionID != "" {
		c.logger.Info("local run has no active remote session, resetting", "session_id", st.CurrentSessionID)
		c.store.ResetTimer()
	}
}

func (c *Controller) interruptActive(ctx context.Context, now time.Time) {
	sessions, err := c.repo.ListSessions(ctx, model.SessionFilter{UserID: c.userID, Status: model.SessionActive})
	if err != nil {
		c.logger.Warn("list active sessions before start", "error", err)
		return
	}
	for _, s := range sessions {
		c.logger.Info("interrupting previous active session", "session_id", s.ID)
		_ = c.closeRemote(ctx, s.ID, c.orphanClosure(s, now))
	}
}

func (c *Controller) orphanClosure(s model.FocusSession, now time.Time) closure {
	if now.Sub(s.StartTime) > c.orphanAge {
		return closure{status: model.SessionInterrupted, endTime: s.StartTime, duration: 0}
	}
	minutes := timer.CreditedMinutes(int(now.Sub(s.StartTime) / time.Second))
	if s.Duration != nil && *s.Duration > 0 && minutes > *s.Duration {
		minutes = *s.Duration
	}
	return closure{status: model.SessionInterrupted, endTime: now, duration: minutes}
}

func (c *Controller) closeRemote(ctx context.Context, sessionID string, cl closure) error {
	status := cl.status
	_, err := c.repo.UpdateSession(ctx, sessionID, model.SessionPatch{
		Status:   &status,
		EndTime:  model.TimePtr(cl.endTime),
		Duration: model.IntPtr(cl.duration),
	})
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionClosed) {
		c.logger.Info("session already closed", "session_id", sessionID, "error", err)
		return nil
	}
	if err != nil {
		c.report("Could not save the end of the focus session", err)
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	return nil
}

func (c *Controller) pushTask(ctx context.Context, sessionID, taskID string) error {
	patch := model.SessionPatch{ClearTask: taskID == ""}
	if taskID != "" {
		patch.TaskID = model.StringPtr(taskID)
	}
	_, err := c.repo.UpdateSession(ctx, sessionID, patch)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		c.report("Could not link the session to the task", err)
		return fmt.Errorf("rebind task: %w", err)
	}
	return nil
}

func (c *Controller) report(message string, err error) {
	c.logger.Warn(message, "error", err)
	c.notifier.Notify(Notice{Level: LevelError, Message: message, Err: err})
}

func (c *Controller) now() time.Time {
	return c.store.Clock().Now()
}

func closureFor(st timer.State, view timer.View, now time.Time) closure {
	if st.Mode == timer.ModeChronometer {
		return closure{
			status:   model.SessionCompleted,
			endTime:  now,
			duration: timer.CreditedMinutes(view.ElapsedSeconds),
		}
	}

	planned := st.SelectedDuration
	if view.RemainingSeconds == 0 {
		end := now
		if !st.TimerStartTime.IsZero() {
			end = st.TimerStartTime.Add(time.Duration(planned) * time.Minute)
		}
		return closure{status: model.SessionCompleted, endTime: end, duration: planned}
	}

	minutes := timer.CreditedMinutes(view.ElapsedSeconds)
	if minutes > planned {
		minutes = planned
	}
	return closure{status: model.SessionInterrupted, endTime: now, duration: minutes}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
