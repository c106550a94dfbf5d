package store

import (
	"context"
	"fmt"
	"time"
)

// Stats is a point-in-time usage snapshot for the admin panel.
type Stats struct {
	Users         int
	Subscribers   int
	MessagesToday int
}

// Stats counts registered users, effective subscribers and messages created
// within the trailing 24 hours.
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users",
	).Scan(&st.Users); err != nil {
		return Stats{}, fmt.Errorf("failed to count users: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE is_active = 1 AND expires_at > ?
	`, formatTime(now)).Scan(&st.Subscribers); err != nil {
		return Stats{}, fmt.Errorf("failed to count subscribers: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE created_at > ?
	`, formatTime(now.Add(-24*time.Hour))).Scan(&st.MessagesToday); err != nil {
		return Stats{}, fmt.Errorf("failed to count recent messages: %w", err)
	}

	return st, nil
}
