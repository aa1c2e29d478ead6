package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"focusflow/internal/db"
	"focusflow/internal/handler"
	"focusflow/internal/logging"
	"focusflow/internal/repository"
	"focusflow/internal/router"
	"focusflow/internal/service"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type sessionBody struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TaskID    *string    `json:"task_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Duration  *int       `json:"duration"`
	Status    string     `json:"status"`
	Notes     *string    `json:"notes"`
	Rating    *int       `json:"rating"`
}

type sessionEnvelope struct {
	Session sessionBody `json:"session"`
}

type listEnvelope struct {
	Sessions []sessionBody `json:"sessions"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestSessionLifecycleAndIsolation(t *testing.T) {
	engine := setupTestEngine(t)

	user1 := registerUser(t, engine, "user1@example.com", "123456")
	user2 := registerUser(t, engine, "user2@example.com", "123456")

	start := time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)
	created := createSession(t, engine, user1.Token, map[string]interface{}{
		"task_id":    "task-1",
		"duration":   25,
		"start_time": start,
	})
	if created.Status != "active" {
		t.Fatalf("expected active by default, got %s", created.Status)
	}
	if created.UserID != user1.User.ID {
		t.Fatalf("expected owner %s, got %s", user1.User.ID, created.UserID)
	}
	if !created.StartTime.Equal(start) {
		t.Fatalf("expected start %v, got %v", start, created.StartTime)
	}

	// Another user can neither see nor touch the session.
	status, _ := requestJSON(t, engine, http.MethodGet, "/api/sessions/"+created.ID, user2.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %d", status)
	}
	if list := listSessions(t, engine, user2.Token, ""); len(list.Sessions) != 0 {
		t.Fatalf("expected no sessions for user2, got %d", len(list.Sessions))
	}

	status, raw := requestJSON(t, engine, http.MethodPatch, "/api/sessions/"+created.ID, user1.Token, map[string]interface{}{
		"status":   "completed",
		"duration": 25,
		"end_time": start.Add(25 * time.Minute),
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on patch, got %d: %s", status, raw)
	}
	var patched sessionEnvelope
	if err := json.Unmarshal(raw, &patched); err != nil {
		t.Fatalf("unmarshal patch response: %v", err)
	}
	if patched.Session.Status != "completed" || patched.Session.EndTime == nil {
		t.Fatalf("unexpected patched session %+v", patched.Session)
	}

	// A closed session cannot flip to another terminal status.
	status, raw = requestJSON(t, engine, http.MethodPatch, "/api/sessions/"+created.ID, user1.Token, map[string]interface{}{
		"status": "interrupted",
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on reclose, got %d", status)
	}
	var conflict apiErrorEnvelope
	if err := json.Unmarshal(raw, &conflict); err != nil {
		t.Fatalf("unmarshal conflict: %v", err)
	}
	if conflict.Error.Code != "session_closed" {
		t.Fatalf("expected session_closed, got %s", conflict.Error.Code)
	}

	status, raw = requestJSON(t, engine, http.MethodPatch, "/api/sessions/"+created.ID, user1.Token, map[string]interface{}{
		"notes":  "good block",
		"rating": 5,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on annotate, got %d: %s", status, raw)
	}

	status, _ = requestJSON(t, engine, http.MethodPatch, "/api/sessions/"+created.ID, user1.Token, map[string]interface{}{
		"rating": 7,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range rating, got %d", status)
	}

	completed := listSessions(t, engine, user1.Token, "?status=completed")
	if len(completed.Sessions) != 1 || completed.Sessions[0].Rating == nil || *completed.Sessions[0].Rating != 5 {
		t.Fatalf("unexpected completed listing %+v", completed.Sessions)
	}

	status, _ = requestJSON(t, engine, http.MethodDelete, "/api/sessions/"+created.ID, user2.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 deleting foreign session, got %d", status)
	}
	status, _ = requestJSON(t, engine, http.MethodDelete, "/api/sessions/"+created.ID, user1.Token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", status)
	}
}

func TestClosedSessionKeepsClosureFields(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "closed@example.com", "123456")

	start := time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)
	created := createSession(t, engine, user.Token, map[string]interface{}{
		"duration":   25,
		"start_time": start,
	})
	status, raw := requestJSON(t, engine, http.MethodPatch, "/api/sessions/"+created.ID, user.Token, map[string]interface{}{
		"status":   "completed",
		"duration": 25,
		"end_time": end,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d: %s", status, raw)
	}

	patches := []map[string]interface{}{
		{"status": "completed", "duration": 1, "end_time": start.Add(time.Minute)},
		{"duration": 3},
		{"end_time": start.Add(2 * time.Minute)},
	}
	for _, patch := range patches {
		status, raw = requestJSON(t, engine, http.MethodPatch, "/api/sessions/"+created.ID, user.Token, patch)
		if status != http.StatusConflict {
			t.Fatalf("expected 409 for %v, got %d: %s", patch, status, raw)
		}
		var conflict apiErrorEnvelope
		if err := json.Unmarshal(raw, &conflict); err != nil {
			t.Fatalf("unmarshal conflict: %v", err)
		}
		if conflict.Error.Code != "session_closed" {
			t.Fatalf("expected session_closed, got %s", conflict.Error.Code)
		}
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/sessions/"+created.ID, user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d: %s", status, raw)
	}
	var got sessionEnvelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if got.Session.Duration == nil || *got.Session.Duration != 25 {
		t.Fatalf("duration changed on closed session: %v", got.Session.Duration)
	}
	if got.Session.EndTime == nil || !got.Session.EndTime.Equal(end) {
		t.Fatalf("end time changed on closed session: %v", got.Session.EndTime)
	}
}

func TestListOrdersNewestFirstAndFiltersByDate(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "list@example.com", "123456")

	base := time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		createSession(t, engine, user.Token, map[string]interface{}{
			"status":     "interrupted",
			"duration":   5,
			"start_time": base.Add(time.Duration(i) * time.Hour),
		})
	}

	all := listSessions(t, engine, user.Token, "")
	if len(all.Sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all.Sessions))
	}
	for i := 1; i < len(all.Sessions); i++ {
		if all.Sessions[i].StartTime.After(all.Sessions[i-1].StartTime) {
			t.Fatal("sessions are not ordered newest first")
		}
	}
	if all.Sessions[0].EndTime == nil {
		t.Fatal("terminal session created without end time")
	}

	windowed := listSessions(t, engine, user.Token, "?startDate=2026-05-11T09:30:00Z&limit=1")
	if len(windowed.Sessions) != 1 || !windowed.Sessions[0].StartTime.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("unexpected windowed listing %+v", windowed.Sessions)
	}

	status, _ := requestJSON(t, engine, http.MethodGet, "/api/sessions?startDate=yesterday", user.Token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", status)
	}
}

func TestFinalizeAcceptsQueryToken(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "beacon@example.com", "123456")

	created := createSession(t, engine, user.Token, map[string]interface{}{})
	end := created.StartTime.Add(90 * time.Second)

	status, _ := requestJSON(t, engine, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", "", map[string]interface{}{
		"status":   "interrupted",
		"end_time": end,
		"duration": 2,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without any token, got %d", status)
	}

	path := "/api/sessions/" + created.ID + "/finalize?access_token=" + user.Token
	status, raw := requestJSON(t, engine, http.MethodPost, path, "", map[string]interface{}{
		"status":   "interrupted",
		"end_time": end,
		"duration": 2,
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 on finalize, got %d: %s", status, raw)
	}

	// A second beacon for an already closed session is a no-op.
	status, _ = requestJSON(t, engine, http.MethodPost, path, "", map[string]interface{}{
		"status":   "completed",
		"end_time": end,
		"duration": 25,
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 on repeated finalize, got %d", status)
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/sessions/"+created.ID, user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", status)
	}
	var got sessionEnvelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if got.Session.Status != "interrupted" || got.Session.Duration == nil || *got.Session.Duration != 2 {
		t.Fatalf("unexpected finalized session %+v", got.Session)
	}
}

func TestSessionsRequireAuth(t *testing.T) {
	engine := setupTestEngine(t)

	status, _ := requestJSON(t, engine, http.MethodGet, "/api/sessions", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	status, _ = requestJSON(t, engine, http.MethodGet, "/api/sessions", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/abc", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	engine := setupTestEngine(t)
	status, raw := requestJSON(t, engine, http.MethodGet, "/api/tasks", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	var apiErr apiErrorEnvelope
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if apiErr.Error.Code != "route_not_found" {
		t.Fatalf("unexpected code %q", apiErr.Error.Code)
	}
}

func TestMeReturnsTokenOwner(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "Me@Example.com ", "123456")

	status, raw := requestJSON(t, engine, http.MethodGet, "/api/auth/me", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, raw)
	}
	var resp struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal me response: %v", err)
	}
	if resp.User.ID != user.User.ID || resp.User.Email != "me@example.com" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}

	status, _ = requestJSON(t, engine, http.MethodGet, "/api/auth/me", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}
}

func TestTokenFromAnotherIssuerIsRejected(t *testing.T) {
	engine := setupTestEngine(t)
	registerUser(t, engine, "issuer@example.com", "123456")

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "user-x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	status, raw := requestJSON(t, engine, http.MethodGet, "/api/sessions", signed, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", status, raw)
	}
	var apiErr apiErrorEnvelope
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if apiErr.Error.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", apiErr.Error.Code)
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if _, err := db.RunMigrations(database, db.MigrationSource("")); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	authService := service.NewAuthService(userRepo, "test-secret", 24*time.Hour)
	sessionService := service.NewSessionService(sessionRepo)

	return router.New(
		logging.NewNop(),
		authService,
		handler.NewAuthHandler(authService),
		handler.NewSessionHandler(sessionService),
		[]string{"http://localhost:5173"},
	)
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func createSession(t *testing.T, server http.Handler, token string, body map[string]interface{}) sessionBody {
	t.Helper()
	status, raw := requestJSON(t, server, http.MethodPost, "/api/sessions", token, body)
	if status != http.StatusCreated {
		t.Fatalf("create session failed with status %d: %s", status, raw)
	}
	var resp sessionEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	return resp.Session
}

func listSessions(t *testing.T, server http.Handler, token, query string) listEnvelope {
	t.Helper()
	status, raw := requestJSON(t, server, http.MethodGet, "/api/sessions"+query, token, nil)
	if status != http.StatusOK {
		t.Fatalf("list sessions failed with status %d: %s", status, raw)
	}
	var resp listEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal list response: %v", err)
	}
	return resp
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
