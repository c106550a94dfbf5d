// Package policy derives quota and subscription decisions from the store:
// whether a user may send another message and which model tier applies.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avdeyev/sputnik/internal/bot/store"
)

// UnlimitedSentinel is the limit reported for subscribed users. Large enough
// that no interactive human reaches it within the sliding window.
const UnlimitedSentinel = 9999

// usageWindow is the trailing period over which free-tier usage is counted.
// A sliding window, not a calendar day.
const usageWindow = 24 * time.Hour

// Policy answers quota and subscription questions.
type Policy struct {
	store     *store.Store
	freeLimit int
	logger    *slog.Logger
}

// New creates a Policy with the given free-tier message ceiling.
func New(s *store.Store, freeLimit int, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{store: s, freeLimit: freeLimit, logger: logger}
}

// IsSubscribed reports whether the user holds an effective subscription:
// flagged active and not yet past its expiry.
func (p *Policy) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	sub, err := p.store.EffectiveSubscription(ctx, userID, time.Now())
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// Usage returns the number of messages the user sent within the trailing
// 24 hours and the applicable limit. Subscribed users get the unlimited
// sentinel; everyone else gets the configured free-tier ceiling.
func (p *Policy) Usage(ctx context.Context, userID int64) (used, limit int, err error) {
	used, err = p.store.CountUserMessagesSince(ctx, userID, time.Now().Add(-usageWindow))
	if err != nil {
		return 0, 0, err
	}

	subscribed, err := p.IsSubscribed(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	if subscribed {
		return used, UnlimitedSentinel, nil
	}
	return used, p.freeLimit, nil
}

// Grant creates or extends the user's subscription for the given number of
// days from now, creating the user record first when needed. Granting is
// idempotent: repeated grants update the single subscription row in place.
func (p *Policy) Grant(ctx context.Context, userID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, fmt.Errorf("subscription duration must be positive, got %d days", days)
	}
	expiresAt := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	if err := p.store.UpsertSubscription(ctx, userID, expiresAt); err != nil {
		return time.Time{}, err
	}
	p.logger.Info("subscription granted", "user_id", userID, "days", days, "expires_at", expiresAt)
	return expiresAt, nil
}

// PaymentLink returns a payment URL for the given tenure. This is a stub: a
// real integration would call the payment provider here and return its
// checkout URL.
func (p *Policy) PaymentLink(userID int64, days, amount int) string {
	paymentID := uuid.NewString()
	p.logger.Info("payment link generated", "user_id", userID, "payment_id", paymentID, "days", days, "amount", amount)
	return fmt.Sprintf("https://payment-system.example/pay/%s?amount=%d&days=%d", paymentID, amount, days)
}
