//go:build !unix

package main

import (
	"os"
	"os/signal"

	"focusflow/internal/focus"
)

func notifyLifecycle(events chan<- focus.Event) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-sigs:
			select {
			case events <- focus.EventUnload:
			case <-done:
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func suspendSelf() {}
