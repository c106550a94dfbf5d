package notify

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/avdeyev/sputnik/internal/bot/store"
)

type fakeNotifier struct {
	sent    map[int64]string
	failFor int64
}

func (f *fakeNotifier) NotifyHTML(ctx context.Context, userID int64, text string) error {
	if userID == f.failFor {
		return errors.New("user blocked the bot")
	}
	if f.sent == nil {
		f.sent = make(map[int64]string)
	}
	f.sent[userID] = text
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "sputnik-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestSweepNotifiesExpiring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	expiring := now.Add(2 * 24 * time.Hour)
	if err := s.UpsertSubscription(ctx, 1, expiring); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	if err := s.UpsertSubscription(ctx, 2, now.Add(30*24*time.Hour)); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}

	notifier := &fakeNotifier{}
	sw := New(s, notifier, 3, nil)
	sw.now = func() time.Time { return now }

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("notified: got %d users, want 1", len(notifier.sent))
	}
	text, ok := notifier.sent[1]
	if !ok {
		t.Fatal("user 1 not notified")
	}
	if !strings.Contains(text, expiring.Format("02.01.2006")) {
		t.Errorf("notice missing expiry date: %q", text)
	}
	if !strings.Contains(text, "/subscribe") {
		t.Errorf("notice missing renewal command: %q", text)
	}
}

func TestSweepContinuesPastDeliveryFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertSubscription(ctx, 1, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	if err := s.UpsertSubscription(ctx, 2, now.Add(2*24*time.Hour)); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}

	notifier := &fakeNotifier{failFor: 1}
	sw := New(s, notifier, 3, nil)
	sw.now = func() time.Time { return now }

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if _, ok := notifier.sent[2]; !ok {
		t.Error("failure for user 1 starved user 2")
	}
}

func TestInWindow(t *testing.T) {
	sw := New(nil, nil, 3, nil)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)
	cases := []struct {
		at   time.Time
		want bool
	}{
		{day.Add(10 * time.Hour), true},
		{day.Add(10*time.Hour + 4*time.Minute), true},
		{day.Add(10*time.Hour + 5*time.Minute), false},
		{day.Add(9*time.Hour + 59*time.Minute), false},
		{day.Add(15 * time.Hour), false},
	}
	for _, tc := range cases {
		if got := sw.inWindow(tc.at); got != tc.want {
			t.Errorf("inWindow(%v): got %v, want %v", tc.at, got, tc.want)
		}
	}
}
