package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server is the session service the client talks to.
type Server struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// BeaconTimeoutMillis bounds the best-effort finalize sent on exit.
	BeaconTimeoutMillis int `toml:"beacon_timeout_ms"`
}

// Timer holds local timer preferences.
type Timer struct {
	DefaultMode      string `toml:"default_mode"`
	DefaultDuration  int    `toml:"default_duration"`
	TickIntervalMs   int    `toml:"tick_interval_ms"`
	DailyGoalMinutes int    `toml:"daily_goal_minutes"`
}

// Paths locates client-side durable state.
type Paths struct {
	StateDir string `toml:"state_dir"`
	Profile  string `toml:"profile"`
}

// Logging controls client log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ClientConfig is the focus CLI configuration file.
type ClientConfig struct {
	Server  Server  `toml:"server"`
	Timer   Timer   `toml:"timer"`
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
}

// DefaultClient returns the built-in client settings.
func DefaultClient() ClientConfig {
	return ClientConfig{
		Server: Server{
			URL:                 "http://localhost:8080",
			TimeoutSeconds:      10,
			BeaconTimeoutMillis: 1500,
		},
		Timer: Timer{
			DefaultMode:      "timer",
			DefaultDuration:  25,
			TickIntervalMs:   100,
			DailyGoalMinutes: 120,
		},
		Paths: Paths{
			StateDir: "~/.local/state/focusflow",
			Profile:  "default",
		},
		Logging: Logging{
			Level:  "warn",
			Format: "text",
		},
	}
}

// DefaultClientPath is where LoadClient looks when no path is given.
func DefaultClientPath() (string, error) {
	return ExpandPath("~/.config/focusflow/config.toml")
}

// LoadClient reads the client config at path (or the default location),
// applies defaults and validates the result. A missing file is not an error.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClient()

	if strings.TrimSpace(path) == "" {
		defaultPath, err := DefaultClientPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	} else {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		path = expanded
	}

	file, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stateDir, err := ExpandPath(cfg.Paths.StateDir)
	if err != nil {
		return nil, err
	}
	cfg.Paths.StateDir = stateDir
	return &cfg, nil
}

func (c *ClientConfig) normalize() {
	defaults := DefaultClient()
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = defaults.Server.TimeoutSeconds
	}
	if c.Server.BeaconTimeoutMillis <= 0 {
		c.Server.BeaconTimeoutMillis = defaults.Server.BeaconTimeoutMillis
	}
	c.Timer.DefaultMode = strings.ToLower(strings.TrimSpace(c.Timer.DefaultMode))
	if c.Timer.DefaultMode == "" {
		c.Timer.DefaultMode = defaults.Timer.DefaultMode
	}
	if c.Timer.DefaultDuration == 0 {
		c.Timer.DefaultDuration = defaults.Timer.DefaultDuration
	}
	if c.Timer.TickIntervalMs <= 0 {
		c.Timer.TickIntervalMs = defaults.Timer.TickIntervalMs
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaults.Paths.StateDir
	}
	c.Paths.Profile = strings.TrimSpace(c.Paths.Profile)
	if c.Paths.Profile == "" {
		c.Paths.Profile = defaults.Paths.Profile
	}
}

// Validate reports the first invalid setting.
func (c *ClientConfig) Validate() error {
	if c.Timer.DefaultMode != "timer" && c.Timer.DefaultMode != "chronometer" {
		return fmt.Errorf("timer.default_mode: must be timer or chronometer, got %q", c.Timer.DefaultMode)
	}
	if c.Timer.DefaultDuration < 5 || c.Timer.DefaultDuration > 60 || c.Timer.DefaultDuration%5 != 0 {
		return fmt.Errorf("timer.default_duration: must be a multiple of 5 between 5 and 60, got %d", c.Timer.DefaultDuration)
	}
	if c.Timer.DailyGoalMinutes < 0 {
		return fmt.Errorf("timer.daily_goal_minutes: must not be negative")
	}
	if strings.ContainsAny(c.Paths.Profile, `/\`) {
		return fmt.Errorf("paths.profile: must not contain path separators")
	}
	return nil
}

func (c *ClientConfig) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMs) * time.Millisecond
}

func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func (c *ClientConfig) BeaconTimeout() time.Duration {
	return time.Duration(c.Server.BeaconTimeoutMillis) * time.Millisecond
}

// ProfileDir is the per-profile directory holding the timer snapshot and token.
func (c *ClientConfig) ProfileDir() string {
	return filepath.Join(c.Paths.StateDir, c.Paths.Profile)
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
