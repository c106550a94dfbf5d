package store

import (
	"context"
	"fmt"
	"time"
)

// Message roles. The schema rejects anything else.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn belonging to one user.
type Message struct {
	ID        int64
	UserID    int64
	Role      string
	Content   string
	CreatedAt time.Time
}

// AppendMessage records one conversation turn and refreshes the user's
// last-active timestamp in the same transaction, creating the user row on
// first contact.
func (s *Store) AppendMessage(ctx context.Context, userID int64, role, content string) error {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, last_active) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_active = excluded.last_active
	`, userID, now); err != nil {
		return fmt.Errorf("failed to touch user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)
	`, userID, role, content, now); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent limit turns for the user in
// chronological order (oldest of the window first). Rows created within the
// same second are ordered by insertion.
func (s *Store) RecentMessages(ctx context.Context, userID int64, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at
			FROM messages
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at, id
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m         Message
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}

// CountUserMessagesSince counts turns with role "user" created after the
// given cutoff. Used for the sliding-window quota.
func (s *Store) CountUserMessagesSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE user_id = ? AND role = ? AND created_at > ?
	`, userID, RoleUser, formatTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return count, nil
}

// DeleteMessagesBefore removes all messages older than the cutoff, for all
// users, and returns the number of deleted rows.
func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE created_at < ?
	`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old messages: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return deleted, nil
}
