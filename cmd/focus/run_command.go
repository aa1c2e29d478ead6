package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"focusflow/internal/focus"
	"focusflow/internal/timer"
	"focusflow/internal/widget"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &startFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start (or rejoin) a session and keep it in the foreground",
		Long: "Run keeps the timer in the foreground until the session ends. Ctrl-Z suspends\n" +
			"the display, and interrupting or closing the terminal ends the session as\n" +
			"interrupted. Type p, r, s or q and Enter to pause, resume, stop or quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()

			if _, err := flags.begin(cmd.Context(), t, cmd.OutOrStdout()); err != nil {
				return err
			}
			return hold(cmd, t, holdOptions{unloadOnExit: true, exitWhenIdle: true, interactive: true})
		},
	}
	flags.register(cmd)
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the live timer; a countdown that ends while watching is completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.mount(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			return hold(cmd, t, holdOptions{})
		},
	}
}

type holdOptions struct {
	// unloadOnExit sends the exit finalizer for a running session.
	unloadOnExit bool
	exitWhenIdle bool
	interactive  bool
}

// hold keeps a mounted tab alive: it drives the tick loop, renders the
// floating widget and feeds lifecycle signals to the guard until the context
// ends, an unload signal arrives or, with exitWhenIdle, the run is over.
func hold(cmd *cobra.Command, t *tab, opts holdOptions) error {
	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	live := newLiveLine(out, isTerminal(out))
	defer live.Done()

	loopOpts := []timer.LoopOption{
		timer.WithInterval(t.cfg.TickInterval()),
		timer.WithLoopLogger(t.logger),
	}
	if live.tty {
		loopOpts = append(loopOpts, timer.OnTick(func(v timer.View) {
			live.Update(liveFrame(v))
		}))
	}
	loop := timer.NewLoop(t.store, func(v timer.View) {
		if err := t.ctrl.Complete(runCtx, v); err != nil {
			t.logger.Debug("complete session", "error", err)
		}
	}, loopOpts...)

	detach := widget.Attach(t.store, live, frameRenderer{})
	defer detach()

	idle := make(chan struct{}, 1)
	unsubscribe := t.store.Subscribe(func(st timer.State) {
		if !st.Active {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()
	if opts.exitWhenIdle && !t.store.State().Active {
		return nil
	}

	events := make(chan focus.Event, 4)
	stopSignals := notifyLifecycle(events)
	defer stopSignals()

	loopDone := make(chan error, 1)
	loopStopped := make(chan struct{})
	go func() {
		defer close(loopStopped)
		loopDone <- loop.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-loopStopped
	}()

	var commands <-chan string
	if opts.interactive && isTerminal(cmd.InOrStdin()) {
		commands = readCommands(runCtx.Done(), cmd.InOrStdin())
	}

	unload := func() {
		if opts.unloadOnExit {
			t.guard.Handle(context.Background(), focus.EventUnload)
		}
	}

	for {
		select {
		case <-runCtx.Done():
			unload()
			return nil
		case err := <-loopDone:
			if runCtx.Err() != nil {
				unload()
				return nil
			}
			return err
		case <-idle:
			if opts.exitWhenIdle {
				return nil
			}
		case ev := <-events:
			if ev == focus.EventUnload {
				unload()
				return nil
			}
			t.guard.Handle(runCtx, ev)
			if ev == focus.EventHidden {
				suspendSelf()
			}
		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if quit := handleKey(runCtx, t, live, line); quit {
				unload()
				return nil
			}
		}
	}
}

func handleKey(ctx context.Context, t *tab, live *liveLine, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "p", "pause":
		t.ctrl.Pause()
	case "r", "resume":
		t.ctrl.Resume()
	case "s", "stop":
		if err := t.ctrl.Stop(ctx); err != nil {
			t.logger.Debug("stop session", "error", err)
		}
	case "q", "quit":
		return true
	case "":
	default:
		live.Note("keys: p pause, r resume, s stop, q quit")
	}
	return false
}

// readCommands forwards input lines until in ends or done is closed. A
// reader blocked inside Scan still exits once its next line arrives.
func readCommands(done <-chan struct{}, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

type frameRenderer struct{}

func (frameRenderer) Render(v timer.View) string {
	return liveFrame(v)
}

func liveFrame(v timer.View) string {
	if frame := (widget.FloatingWidget{}).Render(v); frame != "" {
		return frame
	}
	return "■ No focus session running"
}

// liveLine redraws a single status line in place on a terminal and prints
// one line per change otherwise.
type liveLine struct {
	mu   sync.Mutex
	w    io.Writer
	tty  bool
	last string
}

func newLiveLine(w io.Writer, tty bool) *liveLine {
	return &liveLine{w: w, tty: tty}
}

func (l *liveLine) Write(p []byte) (int, error) {
	l.Update(string(p))
	return len(p), nil
}

func (l *liveLine) Update(frame string) {
	frame = strings.TrimRight(frame, "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	if frame == l.last {
		return
	}
	l.last = frame
	if l.tty {
		fmt.Fprintf(l.w, "\r\x1b[2K%s", frame)
		return
	}
	fmt.Fprintln(l.w, frame)
}

// Note prints a message above the live line.
func (l *liveLine) Note(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tty {
		fmt.Fprintf(l.w, "\r\x1b[2K%s\n%s", msg, l.last)
		return
	}
	fmt.Fprintln(l.w, msg)
}

func (l *liveLine) Done() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tty && l.last != "" {
		fmt.Fprintln(l.w)
	}
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
