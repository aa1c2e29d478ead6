package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"focusflow/internal/config"
	"focusflow/internal/focus"
	"focusflow/internal/logging"
	"focusflow/internal/remote"
	"focusflow/internal/timer"
)

const (
	profileLockWait  = 2 * time.Second
	profileLockRetry = 50 * time.Millisecond
)

// countdownSleep waits between pre-start countdown steps.
var countdownSleep = sleepContext

var errNotLoggedIn = errors.New("not logged in; run `focus login` first")

type commandContext struct {
	flags *globalFlags
	clock timer.Clock

	configOnce sync.Once
	config     *config.ClientConfig
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags, clock: timer.SystemClock{}}
}

func (c *commandContext) ensureConfig() (*config.ClientConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadClient(c.flags.config)
		if err != nil {
			c.configErr = err
			return
		}
		if server := strings.TrimRight(strings.TrimSpace(c.flags.server), "/"); server != "" {
			cfg.Server.URL = server
		}
		if profile := strings.TrimSpace(c.flags.profile); profile != "" {
			cfg.Paths.Profile = profile
		}
		if dir := strings.TrimSpace(c.flags.stateDir); dir != "" {
			expanded, err := config.ExpandPath(dir)
			if err != nil {
				c.configErr = err
				return
			}
			cfg.Paths.StateDir = expanded
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: w})
}

// client builds the API client from the saved login. An explicit --server
// wins over the server the login was made against.
func (c *commandContext) client(logger *slog.Logger) (*remote.Client, remote.Credentials, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, remote.Credentials{}, err
	}
	creds, err := remote.LoadCredentials(cfg.ProfileDir())
	if err != nil {
		return nil, creds, err
	}

	server := cfg.Server.URL
	if strings.TrimSpace(c.flags.server) == "" && creds.Server != "" {
		server = creds.Server
	}
	client, err := remote.New(server,
		remote.WithToken(creds.Token),
		remote.WithTimeout(cfg.RequestTimeout()),
		remote.WithBeaconTimeout(cfg.BeaconTimeout()),
		remote.WithLogger(logger),
	)
	if err != nil {
		return nil, creds, err
	}
	return client, creds, nil
}

// tab is one mounted view of a profile: the local store reconciled against
// the server, with the profile lock held until Close.
type tab struct {
	cfg     *config.ClientConfig
	logger  *slog.Logger
	client  *remote.Client
	creds   remote.Credentials
	store   *timer.Store
	ctrl    *focus.Controller
	guard   *focus.Guard
	lock    *flock.Flock
	mounted timer.View
}

func (c *commandContext) mount(ctx context.Context, cmd *cobra.Command) (*tab, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	client, creds, err := c.client(logger)
	if err != nil {
		return nil, err
	}
	if creds.Token == "" || creds.UserID == "" {
		return nil, errNotLoggedIn
	}

	dir := cfg.ProfileDir()
	lock, err := lockProfile(ctx, dir)
	if err != nil {
		return nil, err
	}

	storage, err := timer.NewFileStorage(dir)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	store := timer.NewStore(
		timer.WithClock(c.clock),
		timer.WithStorage(storage),
		timer.WithLogger(logger),
		timer.WithDefaults(timer.Mode(cfg.Timer.DefaultMode), cfg.Timer.DefaultDuration, cfg.Timer.DailyGoalMinutes),
	)
	ctrl := focus.NewController(store, client, creds.UserID,
		focus.WithFinalizer(client),
		focus.WithNotifier(noticePrinter(cmd.ErrOrStderr())),
		focus.WithLogger(logger),
	)

	view, err := ctrl.Mount(ctx)
	if err != nil {
		logger.Debug("mount reconciliation failed", "error", err)
	}
	return &tab{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		creds:   creds,
		store:   store,
		ctrl:    ctrl,
		guard:   focus.NewGuard(ctrl),
		lock:    lock,
		mounted: view,
	}, nil
}

func (t *tab) Close() {
	t.store.Flush()
	if err := t.lock.Unlock(); err != nil {
		t.logger.Warn("release profile lock", "error", err)
	}
}

func lockProfile(ctx context.Context, dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, "profile.lock"))

	lockCtx, cancel := context.WithTimeout(ctx, profileLockWait)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, profileLockRetry)
	if ok {
		return lock, nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("lock profile: %w", err)
	}
	return nil, fmt.Errorf("profile %s is in use by another focus process (is `focus run` active?)", filepath.Base(dir))
}

// peek loads the profile snapshot without taking the lock or writing back.
func (c *commandContext) peek() (*timer.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	storage, err := timer.NewFileStorage(cfg.ProfileDir())
	if err != nil {
		return nil, err
	}
	store := timer.NewStore(
		timer.WithClock(c.clock),
		timer.WithStorage(readOnlyStorage{storage}),
		timer.WithDefaults(timer.Mode(cfg.Timer.DefaultMode), cfg.Timer.DefaultDuration, cfg.Timer.DailyGoalMinutes),
	)
	if _, _, err := store.LoadFrom(); err != nil {
		return nil, err
	}
	return store, nil
}

type readOnlyStorage struct {
	timer.SnapshotStorage
}

func (readOnlyStorage) Save(timer.Snapshot) error { return nil }
func (readOnlyStorage) Clear() error              { return nil }

func noticePrinter(w io.Writer) focus.Notifier {
	return focus.NotifierFunc(func(n focus.Notice) {
		if n.Level == focus.LevelError {
			fmt.Fprintf(w, "! %s\n", n.Message)
			return
		}
		fmt.Fprintln(w, n.Message)
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func startOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
