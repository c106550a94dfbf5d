// Package notify runs the subscription-expiry sweep: once a day, users whose
// subscription ends within the configured horizon get a renewal reminder.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avdeyev/sputnik/internal/bot/store"
)

// pollInterval is how often the loop checks whether the daily window opened.
const pollInterval = 5 * time.Minute

// sweepHour and sweepWindow bound the daily run: the sweep fires when local
// time falls within [sweepHour:00, sweepHour:00+sweepWindow).
const (
	sweepHour   = 10
	sweepWindow = 5 * time.Minute
)

const expiryNotice = "⚠️ <b>Внимание!</b>\n\n" +
	"Твоя подписка истекает %s.\n" +
	"Чтобы продолжить пользоваться всеми преимуществами, не забудь продлить подписку командой /subscribe."

// Notifier delivers one reminder to one user. Implemented by the Telegram
// front-end.
type Notifier interface {
	NotifyHTML(ctx context.Context, userID int64, text string) error
}

// Sweeper polls the subscription table and sends expiry reminders.
type Sweeper struct {
	store    *store.Store
	notifier Notifier
	horizon  time.Duration
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Sweeper that warns about subscriptions expiring within
// beforeDays days.
func New(st *store.Store, notifier Notifier, beforeDays int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    st,
		notifier: notifier,
		horizon:  time.Duration(beforeDays) * 24 * time.Hour,
		logger:   logger,
		now:      time.Now,
	}
}

// Run loops until ctx is cancelled. After a sweep it sleeps past the daily
// window so the same day is never swept twice.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiry sweeper started", "horizon", s.horizon)

	for {
		wait := pollInterval
		if s.inWindow(s.now()) {
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("expiry sweep failed", "err", err)
			}
			wait = time.Hour
		}

		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-time.After(wait):
		}
	}
}

// Sweep sends one reminder per subscription expiring within the horizon. A
// delivery failure is logged and skipped so one blocked user cannot starve the
// rest.
func (s *Sweeper) Sweep(ctx context.Context) error {
	subs, err := s.store.ExpiringSubscriptions(ctx, s.now(), s.horizon)
	if err != nil {
		return fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}

	for _, sub := range subs {
		text := fmt.Sprintf(expiryNotice, sub.ExpiresAt.Format("02.01.2006"))
		if err := s.notifier.NotifyHTML(ctx, sub.UserID, text); err != nil {
			s.logger.Error("failed to deliver expiry notice", "user_id", sub.UserID, "err", err)
			continue
		}
		s.logger.Info("expiry notice sent", "user_id", sub.UserID, "expires_at", sub.ExpiresAt)
	}
	return nil
}

func (s *Sweeper) inWindow(now time.Time) bool {
	open := time.Date(now.Year(), now.Month(), now.Day(), sweepHour, 0, 0, 0, now.Location())
	return !now.Before(open) && now.Before(open.Add(sweepWindow))
}
