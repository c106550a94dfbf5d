package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddSummary appends a new summary row for the user. Summaries are
// append-only; older rows are kept as an audit trail but only the latest is
// ever surfaced. The user row is created if it does not exist yet.
func (s *Store) AddSummary(ctx context.Context, userID int64, content string) error {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, last_active) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, now); err != nil {
		return fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (user_id, content, created_at) VALUES (?, ?, ?)
	`, userID, content, now); err != nil {
		return fmt.Errorf("failed to add summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}
	return nil
}

// LatestSummary returns the content of the user's most recent summary, or the
// empty string when none exists.
func (s *Store) LatestSummary(ctx context.Context, userID int64) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM summaries
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest summary: %w", err)
	}
	return content, nil
}
