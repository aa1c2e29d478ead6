package timer_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"focusflow/internal/timer"
)

func TestHydrateFoldsElapsedWallClock(t *testing.T) {
	anchor := epoch
	snap := timer.Snapshot{
		Mode:             timer.ModeTimer,
		IsRunning:        true,
		TimeInSeconds:    1500,
		SelectedDuration: 25,
		StartTime:        anchor.UnixMilli(),
		SessionID:        "s-1",
	}

	clock := timer.NewManualClock(anchor.Add(9*time.Minute + 15*time.Second))
	store := timer.NewStore(timer.WithClock(clock))
	view := store.Hydrate(snap)

	if !view.IsRunning {
		t.Fatal("expected running after hydrate")
	}
	if view.RemainingSeconds != 1500-555 {
		t.Fatalf("remaining = %d, want %d", view.RemainingSeconds, 1500-555)
	}
	if view.SessionID != "s-1" {
		t.Fatalf("session id = %q", view.SessionID)
	}
	if !store.State().TimerStartTime.Equal(anchor) {
		t.Fatal("anchor must be the persisted start, not now")
	}
}

func TestHydratePastCompletionIsExpired(t *testing.T) {
	snap := timer.Snapshot{
		Mode:             timer.ModeTimer,
		IsRunning:        true,
		SelectedDuration: 10,
		StartTime:        epoch.UnixMilli(),
	}
	store := timer.NewStore(timer.WithClock(timer.NewManualClock(epoch.Add(11 * time.Minute))))
	view := store.Hydrate(snap)
	if !view.Expired || view.RemainingSeconds != 0 {
		t.Fatalf("expected expired countdown, got %+v", view)
	}
}

func TestHydrateDurationOffTheMenu(t *testing.T) {
	tests := []struct {
		name string
		snap timer.Snapshot
		want int
	}{
		{
			name: "bound run keeps its length",
			snap: timer.Snapshot{Mode: timer.ModeTimer, IsRunning: true, SelectedDuration: 7, StartTime: epoch.UnixMilli(), SessionID: "s-7"},
			want: 7,
		},
		{
			name: "idle preference falls back",
			snap: timer.Snapshot{Mode: timer.ModeTimer, SelectedDuration: 7, TimeInSeconds: 420},
			want: timer.DefaultDurationMinutes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := timer.NewStore(timer.WithClock(timer.NewManualClock(epoch.Add(time.Minute))))
			view := store.Hydrate(tt.snap)
			if view.SelectedDuration != tt.want {
				t.Fatalf("selected = %d, want %d", view.SelectedDuration, tt.want)
			}
		})
	}
}

func TestHydratePausedChronometer(t *testing.T) {
	snap := timer.Snapshot{
		Mode:            timer.ModeChronometer,
		ChronometerTime: 42,
		SessionID:       "s-2",
	}
	store := timer.NewStore(timer.WithClock(timer.NewManualClock(epoch)))
	view := store.Hydrate(snap)
	if view.IsRunning || !view.Paused || view.ElapsedSeconds != 42 {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestFileStorageRoundTripAndClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profile")
	storage, err := timer.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	if snap, err := storage.Load(); err != nil || snap != nil {
		t.Fatalf("expected empty storage, got %+v, %v", snap, err)
	}

	clock := timer.NewManualClock(epoch)
	store := timer.NewStore(timer.WithClock(clock), timer.WithStorage(storage))
	store.StartRun(clock.Now())

	if _, err := os.Stat(storage.Path()); err != nil {
		t.Fatalf("expected snapshot file: %v", err)
	}

	clock.Advance(2 * time.Minute)
	reloaded := timer.NewStore(timer.WithClock(clock), timer.WithStorage(storage))
	view, found, err := reloaded.LoadFrom()
	if err != nil || !found {
		t.Fatalf("LoadFrom: found=%v err=%v", found, err)
	}
	if view.RemainingSeconds != 23*60 {
		t.Fatalf("remaining after reload = %d", view.RemainingSeconds)
	}

	reloaded.ResetTimer()
	if _, err := os.Stat(storage.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected snapshot removed, stat err = %v", err)
	}
}
