package focus

import (
	"context"
	"log/slog"
)

// Event is a host lifecycle signal.
type Event int

const (
	EventHidden Event = iota
	EventVisible
	EventBlur
	EventFocus
	EventUnload
)

func (e Event) String() string {
	switch e {
	case EventHidden:
		return "hidden"
	case EventVisible:
		return "visible"
	case EventBlur:
		return "blur"
	case EventFocus:
		return "focus"
	case EventUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Guard maps lifecycle events onto the controller. Hide and blur resync the
// display so nothing stale is shown on return; show and focus also reconcile
// with the remote record; unload finalizes the running session.
type Guard struct {
	controller *Controller
	logger     *slog.Logger
}

func NewGuard(controller *Controller) *Guard {
	return &Guard{controller: controller, logger: controller.logger}
}

func (g *Guard) Handle(ctx context.Context, event Event) {
	g.logger.Debug("lifecycle event", "event", event.String())
	switch event {
	case EventHidden, EventBlur:
		g.controller.store.SyncTimerState()
	case EventVisible, EventFocus:
		g.controller.store.SyncTimerState()
		if err := g.controller.Recover(ctx); err != nil {
			g.logger.Debug("reconcile on activation failed", "error", err)
		}
		if view := g.controller.store.View(); view.Expired {
			_ = g.controller.Complete(ctx, view)
		}
	case EventUnload:
		g.controller.Unload()
	}
}
