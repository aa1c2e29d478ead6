//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"focusflow/internal/focus"
)

// notifyLifecycle maps terminal signals onto lifecycle events: a job-control
// suspend hides the tab, continue shows it again, and interrupt, terminate or
// hangup unload it.
func notifyLifecycle(events chan<- focus.Event) func() {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGTSTP, unix.SIGCONT)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				ev := focus.EventUnload
				switch sig {
				case unix.SIGTSTP:
					ev = focus.EventHidden
				case unix.SIGCONT:
					ev = focus.EventVisible
				}
				select {
				case events <- ev:
				case <-done:
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// suspendSelf completes a job-control stop that notifyLifecycle intercepted.
func suspendSelf() {
	_ = unix.Kill(unix.Getpid(), unix.SIGSTOP)
}
