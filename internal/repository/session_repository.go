package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"focusflow/internal/model"
)

const sessionColumns = `id, user_id, task_id, start_time, end_time, duration,
		        status, notes, rating, created_at, updated_at`

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *SessionRepository) Insert(ctx context.Context, session *model.FocusSession) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO focus_sessions (
			id, user_id, task_id, start_time, end_time, duration,
			status, notes, rating, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		nullString(session.TaskID),
		formatTime(session.StartTime),
		formatNullTime(session.EndTime),
		nullInt(session.Duration),
		session.Status,
		nullString(session.Notes),
		nullInt(session.Rating),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetTx(ctx context.Context, tx *sql.Tx, userID, sessionID string) (*model.FocusSession, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM focus_sessions
		 WHERE id = ? AND user_id = ?`,
		sessionID,
		userID,
	)
	return scanSession(row)
}

func (r *SessionRepository) Get(ctx context.Context, userID, sessionID string) (*model.FocusSession, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM focus_sessions
		 WHERE id = ? AND user_id = ?`,
		sessionID,
		userID,
	)
	return scanSession(row)
}

func (r *SessionRepository) UpdateTx(ctx context.Context, tx *sql.Tx, session *model.FocusSession) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE focus_sessions
		 SET task_id = ?,
		     start_time = ?,
			 end_time = ?,
			 duration = ?,
			 status = ?,
			 notes = ?,
			 rating = ?,
			 updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		nullString(session.TaskID),
		formatTime(session.StartTime),
		formatNullTime(session.EndTime),
		nullInt(session.Duration),
		session.Status,
		nullString(session.Notes),
		nullInt(session.Rating),
		formatTime(session.UpdatedAt),
		session.ID,
		session.UserID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireAffected(result)
}

func (r *SessionRepository) Delete(ctx context.Context, userID, sessionID string) error {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM focus_sessions WHERE id = ? AND user_id = ?`,
		sessionID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(result)
}

// List returns the user's sessions matching filter, newest start_time first.
func (r *SessionRepository) List(ctx context.Context, filter model.SessionFilter) ([]model.FocusSession, error) {
	clauses := []string{"user_id = ?"}
	args := []interface{}{filter.UserID}

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.TaskID != "" {
		clauses = append(clauses, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.StartDate != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		clauses = append(clauses, "start_time < ?")
		args = append(args, formatTime(*filter.EndDate))
	}

	query := `SELECT ` + sessionColumns + `
		 FROM focus_sessions
		 WHERE ` + strings.Join(clauses, " AND ") + `
		 ORDER BY start_time DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.FocusSession, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(s scanner) (*model.FocusSession, error) {
	session := model.FocusSession{}
	var taskID sql.NullString
	var startTime string
	var endTime sql.NullString
	var duration sql.NullInt64
	var notes sql.NullString
	var rating sql.NullInt64
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&taskID,
		&startTime,
		&endTime,
		&duration,
		&session.Status,
		&notes,
		&rating,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if taskID.Valid {
		session.TaskID = model.StringPtr(taskID.String)
	}
	if notes.Valid {
		session.Notes = model.StringPtr(notes.String)
	}
	if duration.Valid {
		session.Duration = model.IntPtr(int(duration.Int64))
	}
	if rating.Valid {
		session.Rating = model.IntPtr(int(rating.Int64))
	}

	parsedStart, err := parseTime(startTime)
	if err != nil {
		return nil, fmt.Errorf("parse session start_time: %w", err)
	}
	session.StartTime = parsedStart

	if session.EndTime, err = parseNullTime(endTime); err != nil {
		return nil, fmt.Errorf("parse session end_time: %w", err)
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	session.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	session.UpdatedAt = parsedUpdatedAt

	return &session, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func nullInt(value *int) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
