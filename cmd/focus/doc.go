// Package main hosts the focus CLI.
//
// Each invocation mounts the shared timer store for one profile: it hydrates
// the local snapshot, reconciles it with the session server, applies one
// command and flushes the snapshot again. `focus run` and `focus watch` stay
// mounted, drive the tick loop and map terminal signals onto lifecycle
// events (suspend hides, continue shows, interrupt unloads).
package main
