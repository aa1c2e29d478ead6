package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"focusflow/internal/focus"
	"focusflow/internal/model"
	"focusflow/internal/timer"
	"focusflow/internal/widget"
)

func newSessionCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newPauseCommand(ctx),
		newResumeCommand(ctx),
		newTaskCommand(ctx),
		newRateCommand(ctx),
	}
}

// startFlags are shared by start and run.
type startFlags struct {
	taskID    string
	taskName  string
	mode      string
	duration  int
	countdown bool
}

func (f *startFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.taskID, "task", "", "Task id to link the session to")
	cmd.Flags().StringVar(&f.taskName, "name", "", "Task name shown while running")
	cmd.Flags().StringVar(&f.mode, "mode", "", "timer (countdown) or chronometer (stopwatch)")
	cmd.Flags().IntVarP(&f.duration, "duration", "d", 0, "Countdown length in minutes (5-60, step 5)")
	cmd.Flags().BoolVar(&f.countdown, "countdown", false, "Count 3-2-1 before starting")
}

// begin applies the flags to an idle store and starts a session. It reports
// false when a session was already in progress.
func (f *startFlags) begin(ctx context.Context, t *tab, out io.Writer) (bool, error) {
	if view := t.store.View(); view.IsRunning || view.Paused {
		return false, nil
	}

	if f.mode != "" {
		mode := timer.Mode(strings.ToLower(strings.TrimSpace(f.mode)))
		if !mode.Valid() {
			return false, fmt.Errorf("unknown mode %q; use timer or chronometer", f.mode)
		}
		t.store.SetMode(mode)
	}
	if f.duration != 0 {
		if !timer.IsAllowedDuration(f.duration) {
			return false, fmt.Errorf("duration must be one of %s minutes", menuLabel())
		}
		if !t.store.SetSelectedDuration(f.duration) {
			return false, errors.New("--duration only applies to timer mode")
		}
	}

	if f.countdown {
		for i := 3; i > 0; i-- {
			fmt.Fprintf(out, "%d...\n", i)
			if err := countdownSleep(ctx, time.Second); err != nil {
				return false, err
			}
		}
	}

	// A failed remote create leaves the local timer running; the notifier has
	// already told the user.
	if err := t.ctrl.Start(ctx, focus.StartOptions{TaskID: f.taskID, TaskName: f.taskName}); err != nil {
		t.logger.Debug("start session", "error", err)
	}
	return true, nil
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	flags := &startFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a focus session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()

			out := cmd.OutOrStdout()
			started, err := flags.begin(cmd.Context(), t, out)
			if err != nil {
				return err
			}
			if !started {
				fmt.Fprintln(out, "A focus session is already in progress")
			}
			printView(out, t.store.View())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the current focus session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()

			out := cmd.OutOrStdout()
			view := t.store.View()
			if !view.IsRunning && !view.Paused {
				fmt.Fprintln(out, "No focus session is running")
				return nil
			}
			if err := t.ctrl.Stop(cmd.Context()); err != nil {
				t.logger.Debug("stop session", "error", err)
			}
			printOutcome(cmd.Context(), out, t, view)
			return nil
		},
	}
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the running session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()

			if !t.ctrl.Pause() {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to pause")
				return nil
			}
			printView(cmd.OutOrStdout(), t.store.View())
			return nil
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()

			if !t.ctrl.Resume() {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to resume")
				return nil
			}
			printView(cmd.OutOrStdout(), t.store.View())
			return nil
		},
	}
}

func newTaskCommand(ctx *commandContext) *cobra.Command {
	var name string
	var unlink bool
	cmd := &cobra.Command{
		Use:   "task [task-id]",
		Short: "Link the running session to another task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !unlink {
				return errors.New("give a task id or --clear")
			}
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()

			view := t.store.View()
			if !view.IsRunning && !view.Paused {
				return errors.New("no focus session is running")
			}
			taskID := ""
			if !unlink {
				taskID = strings.TrimSpace(args[0])
			} else {
				name = ""
			}
			if err := t.ctrl.RebindTask(cmd.Context(), taskID, name); err != nil {
				t.logger.Debug("rebind task", "error", err)
			}
			printView(cmd.OutOrStdout(), t.store.View())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Task name shown while running")
	cmd.Flags().BoolVar(&unlink, "clear", false, "Unlink the session from its task")
	return cmd
}

func newRateCommand(ctx *commandContext) *cobra.Command {
	var rating int
	var notes string
	cmd := &cobra.Command{
		Use:   "rate [session-id]",
		Short: "Rate or annotate a finished session (defaults to the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ratingPtr *int
			var notesPtr *string
			if cmd.Flags().Changed("rating") {
				ratingPtr = &rating
			}
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}
			if ratingPtr == nil && notesPtr == nil {
				return errors.New("nothing to save; pass --rating and/or --notes")
			}

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, creds, err := ctx.client(logger)
			if err != nil {
				return err
			}
			if creds.Token == "" {
				return errNotLoggedIn
			}

			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			} else {
				latest, err := latestClosedSession(cmd.Context(), client)
				if err != nil {
					return err
				}
				id = latest.ID
			}

			// Annotation never touches the timer, so no profile mount is needed.
			ctrl := focus.NewController(timer.NewStore(), client, creds.UserID,
				focus.WithLogger(logger),
				focus.WithNotifier(noticePrinter(cmd.ErrOrStderr())),
			)
			if err := ctrl.Annotate(cmd.Context(), id, notesPtr, ratingPtr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved notes for session %s\n", id)
			return nil
		},
	}
	cmd.Flags().IntVarP(&rating, "rating", "r", 0, "Rating from 1 to 5")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Free-form notes")
	return cmd
}

type sessionLister interface {
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.FocusSession, error)
}

func latestClosedSession(ctx context.Context, repo sessionLister) (*model.FocusSession, error) {
	sessions, err := repo.ListSessions(ctx, model.SessionFilter{Limit: 20})
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if model.IsTerminalStatus(sessions[i].Status) {
			return &sessions[i], nil
		}
	}
	return nil, errors.New("no finished session to rate")
}

func printOutcome(ctx context.Context, out io.Writer, t *tab, before timer.View) {
	if before.SessionID == "" {
		fmt.Fprintln(out, "Stopped")
		return
	}
	session, err := t.client.GetSession(ctx, before.SessionID)
	if err != nil || session.Duration == nil {
		fmt.Fprintln(out, "Stopped")
		return
	}
	fmt.Fprintf(out, "Session %s: %s after %s\n", session.ID, widget.StatusLabel(session.Status), widget.FormatMinutes(*session.Duration))
}

// printView shows the clock without goal progress, which needs the day's
// history; status renders that.
func printView(out io.Writer, view timer.View) {
	view.DailyGoalMinutes = 0
	fmt.Fprintln(out, widget.InlinePanel{TaskID: view.TaskID, TaskName: view.TaskName}.Render(view))
	if view.SessionID != "" {
		fmt.Fprintf(out, "Session: %s\n", view.SessionID)
	}
}

func menuLabel() string {
	menu := timer.DurationMenu()
	parts := make([]string, 0, len(menu))
	for _, m := range menu {
		parts = append(parts, strconv.Itoa(m))
	}
	return strings.Join(parts, ", ")
}
