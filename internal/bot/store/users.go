package store

import (
	"context"
	"fmt"
	"time"
)

// User is a Telegram user known to the bot. Users are created on first
// contact (or on a subscription grant) and never deleted.
type User struct {
	ID         int64
	LastActive time.Time
}

// TouchUser creates the user row on first contact or refreshes the
// last-active timestamp on subsequent ones.
func (s *Store) TouchUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, last_active) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_active = excluded.last_active
	`, userID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to touch user %d: %w", userID, err)
	}
	return nil
}

// ListUsers returns all users, most recently active first.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, last_active FROM users ORDER BY last_active DESC, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var (
			u          User
			lastActive string
		)
		if err := rows.Scan(&u.ID, &lastActive); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if u.LastActive, err = parseTime(lastActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
