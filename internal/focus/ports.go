// Package focus drives focus sessions: it turns start, stop, pause and task
// changes into local timer transitions and remote session writes, and heals
// orphaned sessions left behind by crashes or closed terminals.
package focus

import (
	"context"
	"errors"
	"log/slog"

	"focusflow/internal/model"
)

// ErrSessionNotFound is matched (errors.Is) by repository errors for a
// session that no longer exists.
var ErrSessionNotFound = errors.New("focus session not found")

// ErrSessionClosed is matched by repository errors when a session has
// already reached a terminal status with a different outcome.
var ErrSessionClosed = errors.New("focus session already closed")

// SessionRepository is the remote store of FocusSession records.
type SessionRepository interface {
	CreateSession(ctx context.Context, input model.NewSession) (*model.FocusSession, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.FocusSession, error)
	UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.FocusSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// Finalizer is a fire-and-forget close usable while the process is going
// away. It must not block the caller for long and reports nothing back.
type Finalizer interface {
	FinalizeSession(id string, fin model.Finalization)
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a short user-facing message, the terminal counterpart of a toast.
type Notice struct {
	Level   Level
	Message string
	Err     error
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier sends notices to a logger only.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(notice Notice) {
	if n.Logger == nil {
		return
	}
	if notice.Level == LevelError {
		n.Logger.Warn(notice.Message, "error", notice.Err)
		return
	}
	n.Logger.Info(notice.Message)
}
