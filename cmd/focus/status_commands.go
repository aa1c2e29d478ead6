package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"focusflow/internal/model"
	"focusflow/internal/remote"
	"focusflow/internal/widget"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the timer for this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.peek()
			if err != nil {
				return err
			}
			view := store.View()

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			today := 0
			if client, creds, err := ctx.client(logger); err == nil && creds.Token != "" {
				today = todayMinutes(cmd.Context(), client, view.At, logger)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, widget.InlinePanel{
				TaskID:       view.TaskID,
				TaskName:     view.TaskName,
				TodayMinutes: today,
			}.Render(view))
			if view.SessionID != "" {
				fmt.Fprintf(out, "Session: %s\n", view.SessionID)
			}
			return nil
		},
	}
}

func todayMinutes(ctx context.Context, client *remote.Client, now time.Time, logger *slog.Logger) int {
	since := startOfDay(now.Local())
	sessions, err := client.ListSessions(ctx, model.SessionFilter{StartDate: &since, Limit: 200})
	if err != nil {
		logger.Debug("load today's sessions", "error", err)
		return 0
	}
	return widget.TodayMinutes(sessions, now, time.Local)
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var status, taskID, since string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent focus sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			filter := model.SessionFilter{
				Status: strings.ToLower(strings.TrimSpace(status)),
				TaskID: strings.TrimSpace(taskID),
				Limit:  limit,
			}
			if since != "" {
				window, err := parseWindow(since)
				if err != nil {
					return err
				}
				from := ctx.clock.Now().Add(-window)
				filter.StartDate = &from
			}

			sessions, err := client.ListSessions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			store, err := ctx.peek()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions yet")
				return nil
			}
			fmt.Fprintln(out, widget.HistoryPanel{Sessions: sessions}.Render(store.View()))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to show")
	cmd.Flags().StringVar(&status, "status", "", "Only sessions with this status")
	cmd.Flags().StringVar(&taskID, "task", "", "Only sessions linked to this task")
	cmd.Flags().StringVar(&since, "since", "", "Only sessions started within this window (e.g. 12h, 7d)")
	return cmd
}

// parseWindow accepts Go durations plus a day suffix.
func parseWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", raw)
	}
	return d, nil
}
