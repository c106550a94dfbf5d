package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Subscription is a user's premium access record. At most one row exists per
// user; renewals update the row in place.
type Subscription struct {
	ID        int64
	UserID    int64
	Active    bool
	ExpiresAt time.Time
}

// UpsertSubscription creates the user's subscription or extends the existing
// one, re-activating it if it had lapsed. The user row is created first so the
// grant works for users who never messaged the bot.
func (s *Store) UpsertSubscription(ctx context.Context, userID int64, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, last_active) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, is_active, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET is_active = 1, expires_at = excluded.expires_at
	`, userID, formatTime(expiresAt)); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subscription: %w", err)
	}
	return nil
}

// EffectiveSubscription returns the user's subscription when it is active and
// not yet expired at the given instant, or nil when no such record exists.
func (s *Store) EffectiveSubscription(ctx context.Context, userID int64, now time.Time) (*Subscription, error) {
	sub, err := s.scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, is_active, expires_at FROM subscriptions
		WHERE user_id = ? AND is_active = 1 AND expires_at > ?
	`, userID, formatTime(now)))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ExpiringSubscriptions returns effective subscriptions whose expiry falls
// within the given duration from now.
func (s *Store) ExpiringSubscriptions(ctx context.Context, now time.Time, within time.Duration) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, is_active, expires_at FROM subscriptions
		WHERE is_active = 1 AND expires_at > ? AND expires_at <= ?
		ORDER BY expires_at
	`, formatTime(now), formatTime(now.Add(within)))
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var (
			sub       Subscription
			expiresAt string
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Active, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if sub.ExpiresAt, err = parseTime(expiresAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub       Subscription
		expiresAt string
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Active, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
