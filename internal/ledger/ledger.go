// Package ledger records login sessions, finished exam attempts and account
// credentials on top of the local store.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/logging"
	"github.com/conorfennell/quizvault/internal/storage"
)

// Ledger is the session and attempt log.
type Ledger struct {
	sessions *storage.Namespace
	attempts *storage.Namespace
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// New returns a ledger over store.
func New(store *storage.Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		sessions: store.Namespace(storage.Sessions),
		attempts: store.Namespace(storage.Attempts),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   logging.OrDefault(logger),
	}
}

// StartSession opens a session for user at the current time.
func (l *Ledger) StartSession(ctx context.Context, user domain.UserAccount) (domain.SessionLog, error) {
	s := domain.SessionLog{ID: l.newID(), UserID: user.ID, LoginAt: l.now()}
	if err := l.sessions.Set(ctx, s.ID, s); err != nil {
		return domain.SessionLog{}, fmt.Errorf("failed to start session for %s: %w", user.Login, err)
	}
	l.logger.Debug("session started", "session", s.ID, "user", user.ID)
	return s, nil
}

// EndSession closes a session. Unknown or already closed sessions are left
// untouched.
func (l *Ledger) EndSession(ctx context.Context, id string) error {
	var s domain.SessionLog
	ok, err := l.sessions.Get(ctx, id, &s)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if !ok || s.Closed() {
		return nil
	}

	logout := l.now()
	duration := max(logout.Sub(s.LoginAt).Milliseconds(), 0)
	s.LogoutAt = &logout
	s.DurationMs = &duration
	if err := l.sessions.Set(ctx, id, s); err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	l.logger.Debug("session ended", "session", id, "duration_ms", duration)
	return nil
}

// AttemptInput describes a finished exam.
type AttemptInput struct {
	SessionID  string
	UserID     string
	ExamID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Score      int
	Total      int
}

// RecordAttempt stores a new attempt. Negative scores and totals are clamped
// to zero, as is a negative duration.
func (l *Ledger) RecordAttempt(ctx context.Context, in AttemptInput) (domain.ExamAttemptLog, error) {
	a := domain.ExamAttemptLog{
		ID:         l.newID(),
		SessionID:  in.SessionID,
		UserID:     in.UserID,
		ExamID:     in.ExamID,
		StartedAt:  in.StartedAt,
		FinishedAt: in.FinishedAt,
		DurationMs: max(in.FinishedAt.Sub(in.StartedAt).Milliseconds(), 0),
		Score:      max(in.Score, 0),
		Total:      max(in.Total, 0),
	}
	if err := l.attempts.Set(ctx, a.ID, a); err != nil {
		return domain.ExamAttemptLog{}, fmt.Errorf("failed to record attempt on %s: %w", in.ExamID, err)
	}
	return a, nil
}

// ListSessions returns every session, most recent login first.
func (l *Ledger) ListSessions(ctx context.Context) ([]domain.SessionLog, error) {
	entries, err := l.sessions.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]domain.SessionLog, 0, len(entries))
	for _, e := range entries {
		var s domain.SessionLog
		if err := e.Decode(&s); err != nil {
			l.logger.Warn("skipping undecodable session", "key", e.Key, "error", err)
			continue
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].LoginAt.Equal(sessions[j].LoginAt) {
			return sessions[i].LoginAt.After(sessions[j].LoginAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// ListAttempts returns every attempt, most recently finished first.
func (l *Ledger) ListAttempts(ctx context.Context) ([]domain.ExamAttemptLog, error) {
	entries, err := l.attempts.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	attempts := make([]domain.ExamAttemptLog, 0, len(entries))
	for _, e := range entries {
		var a domain.ExamAttemptLog
		if err := e.Decode(&a); err != nil {
			l.logger.Warn("skipping undecodable attempt", "key", e.Key, "error", err)
			continue
		}
		attempts = append(attempts, a)
	}
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].FinishedAt.Equal(attempts[j].FinishedAt) {
			return attempts[i].FinishedAt.After(attempts[j].FinishedAt)
		}
		return attempts[i].ID < attempts[j].ID
	})
	return attempts, nil
}

// ClearAll empties both logs.
func (l *Ledger) ClearAll(ctx context.Context) error {
	if err := l.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if err := l.attempts.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	return nil
}
