// Package errors defines the error envelope the session service answers with.
package errors

import "net/http"

// Codes clients branch on. The CLI maps CodeSessionClosed onto a benign
// "already closed" outcome.
const (
	CodeInternal        = "internal_error"
	CodeUnauthorized    = "unauthorized"
	CodeInvalidJSON     = "invalid_json"
	CodeInvalidStatus   = "invalid_status"
	CodeSessionNotFound = "session_not_found"
	CodeSessionClosed   = "session_closed"
	CodeUserNotFound    = "user_not_found"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`

	cause error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Is matches on code, so errors.Is(err, SessionClosed(nil)) works on any
// closed-session answer regardless of details.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Status == 0 || t.Status == e.Status)
}

// Envelope is the JSON body written for e.
func (e *APIError) Envelope() map[string]interface{} {
	return map[string]interface{}{"error": e}
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, CodeInternal, message)
}

// Wrap reports an internal failure while keeping cause for the request log.
// The cause never reaches the response body.
func Wrap(cause error, message string) *APIError {
	apiErr := Internal(message)
	apiErr.cause = cause
	return apiErr
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func InvalidJSON() *APIError {
	return BadRequest(CodeInvalidJSON, "invalid request body")
}

func InvalidStatus(message string) *APIError {
	return BadRequest(CodeInvalidStatus, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

// SessionNotFound covers both missing sessions and sessions owned by someone
// else.
func SessionNotFound() *APIError {
	return NotFound(CodeSessionNotFound, "focus session not found")
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

// SessionClosed rejects a status change on a completed or interrupted
// session. current is echoed back so the caller can reconcile.
func SessionClosed(current interface{}) *APIError {
	var details interface{}
	if current != nil {
		details = map[string]interface{}{"session": current}
	}
	return Conflict(CodeSessionClosed, "session is already closed", details)
}
