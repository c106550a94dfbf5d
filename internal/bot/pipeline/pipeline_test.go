package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avdeyev/sputnik/internal/bot/memory"
	"github.com/avdeyev/sputnik/internal/bot/openai"
)

type sentText struct {
	text string
	kb   Keyboard
}

type fakeSender struct {
	texts   []sentText
	photos  []string
	actions []Action
}

func (f *fakeSender) SendText(ctx context.Context, userID int64, text string, kb Keyboard) error {
	f.texts = append(f.texts, sentText{text, kb})
	return nil
}

func (f *fakeSender) SendPhoto(ctx context.Context, userID int64, url, caption string) error {
	f.photos = append(f.photos, caption)
	return nil
}

func (f *fakeSender) SendAction(ctx context.Context, userID int64, action Action) error {
	f.actions = append(f.actions, action)
	return nil
}

type fakeGateway struct {
	completions   []string // prompts passed as userMessage
	systemPrompts []string
	result        openai.CompletionResult
	tiers         []openai.Tier

	imageOK     bool
	imageResult string

	moderationOK bool
}

func (f *fakeGateway) Complete(ctx context.Context, systemPrompt, summary string, window []openai.ChatMessage, userMessage string, tier openai.Tier) openai.CompletionResult {
	f.completions = append(f.completions, userMessage)
	f.systemPrompts = append(f.systemPrompts, systemPrompt)
	f.tiers = append(f.tiers, tier)
	return f.result
}

func (f *fakeGateway) GenerateImage(ctx context.Context, userID int64, prompt, size string) (bool, string) {
	return f.imageOK, f.imageResult
}

func (f *fakeGateway) CheckModeration(ctx context.Context, text string) bool {
	return f.moderationOK
}

type fakePolicy struct {
	subscribed bool
	used       int
	limit      int
	err        error
}

func (f *fakePolicy) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	return f.subscribed, f.err
}

func (f *fakePolicy) Usage(ctx context.Context, userID int64) (int, int, error) {
	return f.used, f.limit, f.err
}

type fakeMemory struct {
	turns     []memory.Turn
	window    []memory.Turn
	summary   string
	summaries []string
}

func (f *fakeMemory) AppendTurn(ctx context.Context, userID int64, role, content string) error {
	f.turns = append(f.turns, memory.Turn{Role: role, Content: content})
	return nil
}

func (f *fakeMemory) RecentWindow(ctx context.Context, userID int64, windowSize int) ([]memory.Turn, error) {
	return f.window, nil
}

func (f *fakeMemory) LatestSummary(ctx context.Context, userID int64) (string, error) {
	return f.summary, nil
}

func (f *fakeMemory) RecordSummary(ctx context.Context, userID int64, content string) error {
	f.summaries = append(f.summaries, content)
	return nil
}

type fakePrompts struct{ prompt string }

func (f fakePrompts) SystemPrompt(ctx context.Context) (string, error) {
	return f.prompt, nil
}

func newTestPipeline(mem *fakeMemory, pol *fakePolicy, gw *fakeGateway, sender *fakeSender) *Pipeline {
	p := New(mem, pol, gw, fakePrompts{prompt: "be kind"}, sender, nil)
	p.sleep = func(d time.Duration) {}
	return p
}

func TestNonTextMessage(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{limit: 20}, &fakeGateway{}, sender)

	p.HandleIncoming(context.Background(), 1, "", false)

	if len(sender.texts) != 1 {
		t.Fatalf("texts: got %d, want 1", len(sender.texts))
	}
	if sender.texts[0].text != textOnlyNotice {
		t.Errorf("text: got %q", sender.texts[0].text)
	}
}

func TestChatFlow(t *testing.T) {
	mem := &fakeMemory{window: []memory.Turn{{Role: "user", Content: "earlier"}}}
	gw := &fakeGateway{result: openai.CompletionResult{Text: "the answer"}}
	sender := &fakeSender{}
	p := newTestPipeline(mem, &fakePolicy{used: 1, limit: 20}, gw, sender)

	p.HandleIncoming(context.Background(), 1, "a question", true)

	// Both turns persisted: the question, then the reply.
	if len(mem.turns) != 2 {
		t.Fatalf("turns: got %d, want 2", len(mem.turns))
	}
	if mem.turns[0].Role != memory.RoleUser || mem.turns[0].Content != "a question" {
		t.Errorf("user turn: got %+v", mem.turns[0])
	}
	if mem.turns[1].Role != memory.RoleAssistant || mem.turns[1].Content != "the answer" {
		t.Errorf("assistant turn: got %+v", mem.turns[1])
	}

	if len(sender.texts) != 1 || sender.texts[0].text != "the answer" {
		t.Fatalf("texts: got %+v", sender.texts)
	}
	if sender.texts[0].kb != KeyboardMain {
		t.Errorf("keyboard: got %v, want KeyboardMain", sender.texts[0].kb)
	}
	if len(sender.actions) != 1 || sender.actions[0] != ActionTyping {
		t.Errorf("actions: got %+v", sender.actions)
	}
	if len(gw.tiers) != 1 || gw.tiers[0] != openai.TierStandard {
		t.Errorf("tier: got %+v", gw.tiers)
	}
}

func TestChatSubscriberGetsPremiumTier(t *testing.T) {
	gw := &fakeGateway{result: openai.CompletionResult{Text: "ok"}}
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{subscribed: true}, gw, &fakeSender{})

	p.HandleIncoming(context.Background(), 1, "hi", true)

	if len(gw.tiers) != 1 || gw.tiers[0] != openai.TierPremium {
		t.Errorf("tier: got %+v, want premium", gw.tiers)
	}
}

func TestQuotaGate(t *testing.T) {
	mem := &fakeMemory{}
	gw := &fakeGateway{result: openai.CompletionResult{Text: "never"}}
	sender := &fakeSender{}
	p := newTestPipeline(mem, &fakePolicy{used: 20, limit: 20}, gw, sender)

	p.HandleIncoming(context.Background(), 1, "one more", true)

	// The denied message is not persisted and never reaches the model.
	if len(mem.turns) != 0 {
		t.Errorf("turns persisted past quota: %+v", mem.turns)
	}
	if len(gw.completions) != 0 {
		t.Errorf("completion called past quota: %+v", gw.completions)
	}
	if len(sender.texts) != 1 || sender.texts[0].text != quotaExceeded {
		t.Fatalf("texts: got %+v", sender.texts)
	}
	if sender.texts[0].kb != KeyboardSubscribe {
		t.Errorf("keyboard: got %v, want KeyboardSubscribe", sender.texts[0].kb)
	}
}

func TestQuotaDoesNotGateSubscribers(t *testing.T) {
	gw := &fakeGateway{result: openai.CompletionResult{Text: "ok"}}
	sender := &fakeSender{}
	// Usage far past the free limit; the subscription makes it irrelevant.
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{subscribed: true, used: 1000, limit: 20}, gw, sender)

	p.HandleIncoming(context.Background(), 1, "hi", true)

	if len(gw.completions) != 1 {
		t.Errorf("completions: got %d, want 1", len(gw.completions))
	}
}

func TestModelFailureSendsApology(t *testing.T) {
	mem := &fakeMemory{}
	gw := &fakeGateway{result: openai.CompletionResult{Failure: openai.FailureRateLimited}}
	sender := &fakeSender{}
	p := newTestPipeline(mem, &fakePolicy{limit: 20}, gw, sender)

	p.HandleIncoming(context.Background(), 1, "hi", true)

	if len(sender.texts) != 1 {
		t.Fatalf("texts: got %+v", sender.texts)
	}
	reply := sender.texts[0].text
	if reply == "" || reply == "hi" {
		t.Errorf("reply: got %q, want an apology", reply)
	}
	// The apology is persisted as the assistant turn so the window stays
	// consistent with what the user saw.
	if len(mem.turns) != 2 || mem.turns[1].Content != reply {
		t.Errorf("turns: got %+v", mem.turns)
	}
}

func TestPolicyErrorSendsGenericApology(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{err: errors.New("db is gone")}, &fakeGateway{}, sender)

	p.HandleIncoming(context.Background(), 1, "hi", true)

	if len(sender.texts) != 1 || sender.texts[0].text != genericApology {
		t.Fatalf("texts: got %+v", sender.texts)
	}
}

func TestSummarizationCadence(t *testing.T) {
	window := make([]memory.Turn, 10)
	for i := range window {
		window[i] = memory.Turn{Role: "user", Content: "msg"}
	}
	mem := &fakeMemory{window: window}
	gw := &fakeGateway{result: openai.CompletionResult{Text: "summary text"}}
	p := newTestPipeline(mem, &fakePolicy{limit: 20}, gw, &fakeSender{})

	p.HandleIncoming(context.Background(), 1, "hi", true)

	// Two completions: the reply and the summary.
	if len(gw.completions) != 2 {
		t.Fatalf("completions: got %d, want 2", len(gw.completions))
	}
	if len(mem.summaries) != 1 || mem.summaries[0] != "summary text" {
		t.Errorf("summaries: got %+v", mem.summaries)
	}
	// The summary completion carries the same system prompt as the reply.
	if gw.systemPrompts[1] != "be kind" {
		t.Errorf("summary system prompt: got %q, want %q", gw.systemPrompts[1], "be kind")
	}
}

func TestNoSummaryForShortWindow(t *testing.T) {
	mem := &fakeMemory{window: []memory.Turn{{Role: "user", Content: "msg"}}}
	gw := &fakeGateway{result: openai.CompletionResult{Text: "ok"}}
	p := newTestPipeline(mem, &fakePolicy{limit: 20}, gw, &fakeSender{})

	p.HandleIncoming(context.Background(), 1, "hi", true)

	if len(gw.completions) != 1 {
		t.Errorf("completions: got %d, want 1", len(gw.completions))
	}
	if len(mem.summaries) != 0 {
		t.Errorf("summaries: got %+v, want none", mem.summaries)
	}
}

func TestFailedSummaryNotRecorded(t *testing.T) {
	window := make([]memory.Turn, 10)
	for i := range window {
		window[i] = memory.Turn{Role: "user", Content: "msg"}
	}
	mem := &fakeMemory{window: window}
	gw := &fakeGateway{result: openai.CompletionResult{Failure: openai.FailureTimeout}}
	p := newTestPipeline(mem, &fakePolicy{limit: 20}, gw, &fakeSender{})

	p.HandleIncoming(context.Background(), 1, "hi", true)

	if len(mem.summaries) != 0 {
		t.Errorf("apology recorded as summary: %+v", mem.summaries)
	}
}

func TestImageFlow(t *testing.T) {
	gw := &fakeGateway{moderationOK: true, imageOK: true, imageResult: "https://img.example/1.png"}
	sender := &fakeSender{}
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{subscribed: true}, gw, sender)

	p.Pending().Arm(1)
	p.HandleIncoming(context.Background(), 1, "sunset over mountains", true)

	if len(sender.photos) != 1 {
		t.Fatalf("photos: got %+v", sender.photos)
	}
	if sender.photos[0] != "Изображение по запросу: sunset over mountains" {
		t.Errorf("caption: got %q", sender.photos[0])
	}
	if len(sender.actions) != 1 || sender.actions[0] != ActionUploadPhoto {
		t.Errorf("actions: got %+v", sender.actions)
	}
	// The flag is single-use: the next message is plain chat.
	if p.Pending().TakeAndClear(1) {
		t.Error("pending flag survived the image flow")
	}
}

func TestImageFlowModerationBlocks(t *testing.T) {
	gw := &fakeGateway{moderationOK: false}
	sender := &fakeSender{}
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{subscribed: true}, gw, sender)

	p.Pending().Arm(1)
	p.HandleIncoming(context.Background(), 1, "something awful", true)

	if len(sender.photos) != 0 {
		t.Errorf("photos: got %+v, want none", sender.photos)
	}
	if len(sender.texts) != 1 || sender.texts[0].text != unsafePrompt {
		t.Errorf("texts: got %+v", sender.texts)
	}
}

func TestImageFlowFailureReason(t *testing.T) {
	gw := &fakeGateway{moderationOK: true, imageOK: false, imageResult: "пустой ответ сервера"}
	sender := &fakeSender{}
	p := newTestPipeline(&fakeMemory{}, &fakePolicy{subscribed: true}, gw, sender)

	p.Pending().Arm(1)
	p.HandleIncoming(context.Background(), 1, "a cat", true)

	// Progress notice plus the failure reason.
	if len(sender.texts) != 2 {
		t.Fatalf("texts: got %+v", sender.texts)
	}
	if sender.texts[0].text != generatingImage {
		t.Errorf("first text: got %q", sender.texts[0].text)
	}
	if sender.texts[1].text != "Не удалось создать изображение: пустой ответ сервера" {
		t.Errorf("second text: got %q", sender.texts[1].text)
	}
}

func TestPendingImageTakeAndClear(t *testing.T) {
	pending := NewPendingImage()

	if pending.TakeAndClear(1) {
		t.Error("unarmed user reported pending")
	}

	pending.Arm(1)
	if !pending.TakeAndClear(1) {
		t.Error("armed user not reported pending")
	}
	if pending.TakeAndClear(1) {
		t.Error("flag not cleared on take")
	}
}
