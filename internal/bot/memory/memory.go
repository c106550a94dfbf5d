// Package memory maintains rolling conversation context per user: the
// short-term message window and periodic summaries of older dialogue.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/avdeyev/sputnik/internal/bot/store"
)

// Turn roles, mirroring the chat API convention.
const (
	RoleUser      = store.RoleUser
	RoleAssistant = store.RoleAssistant
)

// DefaultWindowSize is the number of recent turns supplied as conversational
// context when the caller has no reason to pick another size.
const DefaultWindowSize = 10

// summaryCadence is the window-length multiple at which a new summary is
// synthesized.
const summaryCadence = 10

// Turn is one conversation turn as supplied to the completion request.
type Turn struct {
	Role    string
	Content string
}

// Memory reads and writes conversation state through the store.
type Memory struct {
	store *store.Store
}

// New creates a Memory backed by the given store.
func New(s *store.Store) *Memory {
	return &Memory{store: s}
}

// AppendTurn records one turn for the user, refreshing the user's last-active
// timestamp and creating the user record on first contact.
func (m *Memory) AppendTurn(ctx context.Context, userID int64, role, content string) error {
	return m.store.AppendMessage(ctx, userID, role, content)
}

// RecentWindow returns the user's most recent windowSize turns, oldest first.
// An empty slice is returned when no turns exist. The window is used verbatim
// as conversational context; it is not deduplicated or trimmed to a token
// budget.
func (m *Memory) RecentWindow(ctx context.Context, userID int64, windowSize int) ([]Turn, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	msgs, err := m.store.RecentMessages(ctx, userID, windowSize)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, len(msgs))
	for i, msg := range msgs {
		turns[i] = Turn{Role: msg.Role, Content: msg.Content}
	}
	return turns, nil
}

// LatestSummary returns the user's most recent summary, or the empty string
// when none exists.
func (m *Memory) LatestSummary(ctx context.Context, userID int64) (string, error) {
	return m.store.LatestSummary(ctx, userID)
}

// RecordSummary appends a new summary row for the user.
func (m *Memory) RecordSummary(ctx context.Context, userID int64, content string) error {
	return m.store.AddSummary(ctx, userID, content)
}

// ShouldSummarize reports whether a summary is due after an append, given the
// length of the window loaded for the request.
//
// The cadence keys off the length of the currently fetched window, not the
// user's all-time message count: once a conversation is long enough to fill
// the window, the condition holds on every append for a window size of 10 and
// never for most other sizes.
// TODO: key the cadence off the stored message count instead of the fetched
// window length.
func ShouldSummarize(windowLen int) bool {
	return windowLen > 0 && windowLen%summaryCadence == 0
}

// BuildSummaryPrompt synthesizes the directive asking the model to compress
// the window into a short digest.
func BuildSummaryPrompt(window []Turn) string {
	var b strings.Builder
	b.WriteString("Создай краткое резюме этого диалога в 1-2 предложениях:\n")
	for _, t := range window {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}
