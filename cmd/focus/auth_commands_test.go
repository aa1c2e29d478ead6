package main

import (
	"errors"
	"testing"
)

func TestWhoamiFollowsLoginAndLogout(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "whoami")
	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected not logged in, got %v", err)
	}

	register(t, env)
	out := mustRunCLI(t, env, "whoami")
	requireContains(t, out, "cli@example.com on ")

	requireContains(t, mustRunCLI(t, env, "logout"), "Logged out")
	_, _, err = runCLI(t, env, "whoami")
	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected not logged in after logout, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := setupCLITestEnv(t)
	register(t, env)
	mustRunCLI(t, env, "logout")

	_, _, err := runCLI(t, env, "login", "--email", "cli@example.com", "--password", "wrong-one")
	if err == nil {
		t.Fatal("expected login to fail")
	}
	requireContains(t, mustRunCLI(t, env, "login", "--email", "CLI@example.com", "--password", "secret1"), "Logged in as cli@example.com")
}
