// Package remote talks to the focusflow session server over HTTP. Client
// satisfies focus.SessionRepository and focus.Finalizer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/focus"
	"focusflow/internal/logging"
	"focusflow/internal/model"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultBeaconTimeout = 1500 * time.Millisecond
	maxErrorBody         = 64 << 10
)

// ErrNotLoggedIn is returned by session calls made without a token.
var ErrNotLoggedIn = errors.New("not logged in")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Is maps server answers onto the errors the focus controller understands.
func (e *StatusError) Is(target error) bool {
	switch target {
	case focus.ErrSessionNotFound:
		return e.Status == http.StatusNotFound
	case focus.ErrSessionClosed:
		return e.Status == http.StatusConflict && e.Code == apperrors.CodeSessionClosed
	case ErrNotLoggedIn:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	beacon *http.Client
	logger *slog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the client used for regular calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithBeaconTimeout bounds how long an exit finalizer may hold the process.
func WithBeaconTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.beacon = &http.Client{Timeout: d}
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("server url is required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultHTTPTimeout},
		beacon: &http.Client{Timeout: defaultBeaconTimeout},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

func (c *Client) HasToken() bool {
	return c.token != ""
}

// AuthResult is the register and login response.
type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, credentialsRequest{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	c.token = out.Token
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, credentialsRequest{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.token = out.Token
	return &out, nil
}

// Me returns the account the current token belongs to.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var out struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return &out.User, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

type sessionEnvelope struct {
	Session model.FocusSession `json:"session"`
}

type listEnvelope struct {
	Sessions []model.FocusSession `json:"sessions"`
}

func (c *Client) CreateSession(ctx context.Context, input model.NewSession) (*model.FocusSession, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	// The server takes the owner from the token.
	input.UserID = ""
	var out sessionEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, input, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &out.Session, nil
}

func (c *Client) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.FocusSession, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	values := url.Values{}
	if filter.Status != "" {
		values.Set("status", filter.Status)
	}
	if filter.TaskID != "" {
		values.Set("taskId", filter.TaskID)
	}
	if filter.StartDate != nil {
		values.Set("startDate", filter.StartDate.UTC().Format(time.RFC3339))
	}
	if filter.EndDate != nil {
		values.Set("endDate", filter.EndDate.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		values.Set("limit", strconv.Itoa(filter.Limit))
	}

	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/sessions", values, nil, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out.Sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*model.FocusSession, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var out sessionEnvelope
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &out.Session, nil
}

func (c *Client) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.FocusSession, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var out sessionEnvelope
	if err := c.do(ctx, http.MethodPatch, sessionPath(id), nil, patch, &out); err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}
	return &out.Session, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// FinalizeSession posts a close with the token in the query string and a
// short deadline. Failures are logged and dropped.
func (c *Client) FinalizeSession(id string, fin model.Finalization) {
	if c.token == "" || id == "" {
		return
	}
	values := url.Values{}
	values.Set("access_token", c.token)
	endpoint := c.endpoint(sessionPath(id)+"/finalize", values)

	raw, err := json.Marshal(fin)
	if err != nil {
		c.logger.Warn("encode finalize payload", "session_id", id, "error", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		c.logger.Warn("build finalize request", "session_id", id, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.beacon.Do(req)
	if err != nil {
		c.logger.Warn("finalize session", "session_id", id, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 400 {
		c.logger.Warn("finalize session rejected", "session_id", id, "status", resp.StatusCode)
		return
	}
	c.logger.Debug("finalize session sent", "session_id", id, "status", fin.Status, "duration", fin.Duration)
}

func (c *Client) requireToken() error {
	if c.token == "" {
		return ErrNotLoggedIn
	}
	return nil
}

func (c *Client) endpoint(path string, values url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(values) > 0 {
		u.RawQuery = values.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, values), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	statusErr := &StatusError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var envelope struct {
		Error apperrors.APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		statusErr.Code = envelope.Error.Code
		statusErr.Message = envelope.Error.Message
	}
	if statusErr.Message == "" {
		statusErr.Message = strings.TrimSpace(string(raw))
	}
	return statusErr
}

func sessionPath(id string) string {
	return "/api/sessions/" + url.PathEscape(id)
}

// IsUnavailable reports whether err means the server could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
