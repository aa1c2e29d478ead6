package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
	"focusflow/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type SessionService struct {
	repo *repository.SessionRepository
	now  func() time.Time
}

func NewSessionService(repo *repository.SessionRepository) *SessionService {
	return &SessionService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) Create(ctx context.Context, userID string, input model.NewSession) (*model.FocusSession, *apperrors.APIError) {
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = model.SessionActive
	}
	if !model.IsValidStatus(status) {
		return nil, apperrors.InvalidStatus("status must be one of active, completed, interrupted")
	}
	if input.Duration != nil && *input.Duration < 0 {
		return nil, apperrors.BadRequest("invalid_duration", "duration must not be negative")
	}

	now := s.now()
	startTime := now
	if input.StartTime != nil && !input.StartTime.IsZero() {
		startTime = input.StartTime.UTC()
	}

	session := model.FocusSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		TaskID:    normalizeTaskID(input.TaskID),
		StartTime: startTime,
		Duration:  input.Duration,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if model.IsTerminalStatus(status) {
		session.EndTime = &now
	}

	if err := s.repo.Insert(ctx, &session); err != nil {
		return nil, apperrors.Wrap(err, "failed to create focus session")
	}
	return &session, nil
}

func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*model.FocusSession, *apperrors.APIError) {
	session, err := s.repo.Get(ctx, userID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.SessionNotFound()
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get session")
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, filter model.SessionFilter) ([]model.FocusSession, *apperrors.APIError) {
	if filter.Status != "" && !model.IsValidStatus(filter.Status) {
		return nil, apperrors.InvalidStatus("status must be one of active, completed, interrupted")
	}
	if filter.StartDate != nil && filter.EndDate != nil && !filter.EndDate.After(*filter.StartDate) {
		return nil, apperrors.BadRequest("invalid_range", "endDate must be after startDate")
	}
	if filter.Limit <= 0 || filter.Limit > maxHistoryLimit {
		filter.Limit = defaultHistoryLimit
	}

	sessions, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list sessions")
	}
	return sessions, nil
}

// Update applies a partial patch. Once a session is closed its status, end
// time and duration are fixed; task, notes and rating stay editable.
func (s *SessionService) Update(ctx context.Context, userID, sessionID string, patch model.SessionPatch) (*model.FocusSession, *apperrors.APIError) {
	if patch.Status != nil && !model.IsValidStatus(*patch.Status) {
		return nil, apperrors.InvalidStatus("status must be one of active, completed, interrupted")
	}
	if patch.Duration != nil && *patch.Duration < 0 {
		return nil, apperrors.BadRequest("invalid_duration", "duration must not be negative")
	}
	if patch.Rating != nil && (*patch.Rating < 1 || *patch.Rating > 5) {
		return nil, apperrors.BadRequest("invalid_rating", "rating must be between 1 and 5")
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	session, err := s.repo.GetTx(ctx, tx, userID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.SessionNotFound()
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get session")
	}

	if model.IsTerminalStatus(session.Status) && patch.TouchesClosure() {
		return nil, apperrors.SessionClosed(session)
	}

	now := s.now()
	if patch.ClearTask {
		session.TaskID = nil
	} else if patch.TaskID != nil {
		session.TaskID = normalizeTaskID(patch.TaskID)
	}
	if patch.Status != nil {
		session.Status = *patch.Status
	}
	if patch.EndTime != nil {
		endTime := patch.EndTime.UTC()
		session.EndTime = &endTime
	} else if patch.Status != nil && model.IsTerminalStatus(*patch.Status) && session.EndTime == nil {
		session.EndTime = &now
	}
	if patch.Duration != nil {
		session.Duration = model.IntPtr(*patch.Duration)
	}
	if patch.Notes != nil {
		session.Notes = model.StringPtr(*patch.Notes)
	}
	if patch.Rating != nil {
		session.Rating = model.IntPtr(*patch.Rating)
	}
	session.UpdatedAt = now

	if err := s.repo.UpdateTx(ctx, tx, session); err != nil {
		return nil, apperrors.Wrap(err, "failed to update session")
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(err, "failed to commit transaction")
	}
	return session, nil
}

func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) *apperrors.APIError {
	err := s.repo.Delete(ctx, userID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.SessionNotFound()
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to delete session")
	}
	return nil
}

// Finalize closes an active session. Sessions already closed are left as they
// are so a late beacon cannot overwrite a completion.
func (s *SessionService) Finalize(ctx context.Context, userID, sessionID string, fin model.Finalization) (*model.FocusSession, *apperrors.APIError) {
	if !model.IsTerminalStatus(fin.Status) {
		return nil, apperrors.InvalidStatus("finalize status must be completed or interrupted")
	}
	if fin.Duration < 0 {
		fin.Duration = 0
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	session, err := s.repo.GetTx(ctx, tx, userID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.SessionNotFound()
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get session")
	}
	if session.Status != model.SessionActive {
		return session, nil
	}

	now := s.now()
	endTime := fin.EndTime.UTC()
	if fin.EndTime.IsZero() {
		endTime = now
	}
	session.Status = fin.Status
	session.EndTime = &endTime
	session.Duration = model.IntPtr(fin.Duration)
	session.UpdatedAt = now

	if err := s.repo.UpdateTx(ctx, tx, session); err != nil {
		return nil, apperrors.Wrap(err, "failed to finalize session")
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(err, "failed to commit transaction")
	}
	return session, nil
}

func normalizeTaskID(taskID *string) *string {
	if taskID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*taskID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
