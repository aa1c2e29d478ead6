package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"focusflow/internal/db"
	"focusflow/internal/handler"
	"focusflow/internal/logging"
	"focusflow/internal/repository"
	"focusflow/internal/router"
	"focusflow/internal/service"
)

type cliTestEnv struct {
	serverURL  string
	stateDir   string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	database, err := db.OpenSQLite(filepath.Join(base, "server.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := db.RunMigrations(database, db.MigrationSource("")); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	authService := service.NewAuthService(repository.NewUserRepository(database), "test-secret", time.Hour)
	engine := router.New(
		logging.NewNop(),
		authService,
		handler.NewAuthHandler(authService),
		handler.NewSessionHandler(service.NewSessionService(repository.NewSessionRepository(database))),
		nil,
	)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	previous := countdownSleep
	countdownSleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { countdownSleep = previous })

	return &cliTestEnv{
		serverURL:  server.URL,
		stateDir:   filepath.Join(base, "state"),
		configPath: filepath.Join(base, "config.toml"),
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), env, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	full := append([]string{
		"--config", env.configPath,
		"--state-dir", env.stateDir,
		"--server", env.serverURL,
		"--log-level", "error",
	}, args...)
	cmd.SetArgs(full)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("focus %s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func register(t *testing.T, env *cliTestEnv) {
	t.Helper()
	out := mustRunCLI(t, env, "register", "--email", "cli@example.com", "--password", "secret1")
	requireContains(t, out, "Logged in as cli@example.com")
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func requireNotContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if strings.Contains(haystack, needle) {
		t.Fatalf("expected output not to contain %q, got:\n%s", needle, haystack)
	}
}
