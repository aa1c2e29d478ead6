package model

import "time"

const (
	SessionActive      = "active"
	SessionCompleted   = "completed"
	SessionInterrupted = "interrupted"
)

// FocusSession is the canonical server-side record of one focus run.
// Duration is in minutes: the planned length while an active countdown runs,
// the credited length once the session is closed, and nil for an active
// stopwatch.
type FocusSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TaskID    *string    `json:"task_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Duration  *int       `json:"duration"`
	Status    string     `json:"status"`
	Notes     *string    `json:"notes"`
	Rating    *int       `json:"rating"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewSession carries the fields a client may set on creation.
type NewSession struct {
	UserID    string     `json:"user_id"`
	TaskID    *string    `json:"task_id,omitempty"`
	Duration  *int       `json:"duration,omitempty"`
	Status    string     `json:"status,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
}

// SessionPatch is a partial update. Nil fields are left untouched; ClearTask
// distinguishes "unlink the task" from "leave task alone".
type SessionPatch struct {
	TaskID    *string    `json:"task_id,omitempty"`
	ClearTask bool       `json:"clear_task,omitempty"`
	Status    *string    `json:"status,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  *int       `json:"duration,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Rating    *int       `json:"rating,omitempty"`
}

// TouchesClosure reports whether the patch sets a field that is fixed once a
// session is closed.
func (p SessionPatch) TouchesClosure() bool {
	return p.Status != nil || p.EndTime != nil || p.Duration != nil
}

// SessionFilter scopes a listing. UserID is mandatory on the server side.
type SessionFilter struct {
	UserID    string
	Status    string
	TaskID    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// Finalization is the payload of a fire-and-forget close.
type Finalization struct {
	Status   string    `json:"status"`
	EndTime  time.Time `json:"end_time"`
	Duration int       `json:"duration"`
}

func IsValidStatus(status string) bool {
	return status == SessionActive || status == SessionCompleted || status == SessionInterrupted
}

func IsTerminalStatus(status string) bool {
	return status == SessionCompleted || status == SessionInterrupted
}

func IntPtr(v int) *int {
	return &v
}

func StringPtr(v string) *string {
	return &v
}

func TimePtr(v time.Time) *time.Time {
	return &v
}
