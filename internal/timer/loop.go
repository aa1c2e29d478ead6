package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"focusflow/internal/logging"
)

const DefaultTickInterval = 100 * time.Millisecond

// CompletionFunc is called once when a running countdown reaches zero.
type CompletionFunc func(View)

// Loop reconciles the store's displayed values against the clock while a run
// is active. It never counts ticks: each tick derives the value from the
// anchor, so missed ticks only delay the refresh, never skew it.
type Loop struct {
	store      *Store
	interval   time.Duration
	onComplete CompletionFunc
	onTick     func(View)
	logger     *slog.Logger

	mu    sync.Mutex
	fired uint64
	armed bool

	wake chan struct{}
}

type LoopOption func(*Loop)

func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// OnTick registers a callback for each reconciled view while running.
func OnTick(fn func(View)) LoopOption {
	return func(l *Loop) { l.onTick = fn }
}

func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

func NewLoop(store *Store, onComplete CompletionFunc, opts ...LoopOption) *Loop {
	l := &Loop{
		store:      store,
		interval:   DefaultTickInterval,
		onComplete: onComplete,
		logger:     logging.NewNop(),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the loop until ctx is done. The ticker only exists while the
// store is running and is rebuilt whenever the run flag, mode or anchor
// change.
func (l *Loop) Run(ctx context.Context) error {
	unsubscribe := l.store.Subscribe(func(State) {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var (
		ticker *time.Ticker
		last   State
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
	}
	defer stopTicker()

	reconfigure := func() {
		st := l.store.State()
		changed := st.IsRunning != last.IsRunning || st.Mode != last.Mode || !st.TimerStartTime.Equal(last.TimerStartTime)
		last = st
		if !st.IsRunning {
			stopTicker()
			return
		}
		if ticker == nil || changed {
			stopTicker()
			ticker = time.NewTicker(l.interval)
			l.Tick()
		}
	}
	reconfigure()

	for {
		var tick <-chan time.Time
		if ticker != nil {
			tick = ticker.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			reconfigure()
		case <-tick:
			l.Tick()
		}
	}
}

// Tick performs one reconciliation at the clock's current time and fires the
// completion callback at most once per run.
func (l *Loop) Tick() View {
	view := l.store.View()
	if !view.IsRunning {
		return view
	}
	if l.onTick != nil {
		l.onTick(view)
	}
	if !view.Expired {
		return view
	}

	l.mu.Lock()
	if l.armed && l.fired == view.Run {
		l.mu.Unlock()
		return view
	}
	l.armed = true
	l.fired = view.Run
	l.mu.Unlock()

	l.logger.Debug("countdown reached zero", "run", view.Run, "session_id", view.SessionID)
	if l.onComplete != nil {
		l.onComplete(view)
	}
	return view
}
