// Package pipeline orchestrates the handling of one inbound user message:
// image flow vs. chat flow, quota enforcement, context assembly, the model
// call, persistence of both turns and the summarization cadence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avdeyev/sputnik/internal/bot/memory"
	"github.com/avdeyev/sputnik/internal/bot/openai"
)

// Keyboard hints tell the transport layer which reply keyboard to attach.
// The pipeline stays ignorant of the actual markup.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMain
	KeyboardSubscribe
)

// Chat actions shown to the user while the bot works.
type Action string

const (
	ActionTyping      Action = "typing"
	ActionUploadPhoto Action = "upload_photo"
)

// Sender delivers replies to the user through the messaging platform.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, userID int64, url, caption string) error
	SendAction(ctx context.Context, userID int64, action Action) error
}

// Gateway is the model-API surface the pipeline drives.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, summary string, window []openai.ChatMessage, userMessage string, tier openai.Tier) openai.CompletionResult
	GenerateImage(ctx context.Context, userID int64, prompt, size string) (bool, string)
	CheckModeration(ctx context.Context, text string) bool
}

// Policy answers the subscription and quota questions.
type Policy interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
	Usage(ctx context.Context, userID int64) (used, limit int, err error)
}

// Memory is the conversation-state surface the pipeline reads and writes.
type Memory interface {
	AppendTurn(ctx context.Context, userID int64, role, content string) error
	RecentWindow(ctx context.Context, userID int64, windowSize int) ([]memory.Turn, error)
	LatestSummary(ctx context.Context, userID int64) (string, error)
	RecordSummary(ctx context.Context, userID int64, content string) error
}

// PromptSource supplies the process-wide system prompt.
type PromptSource interface {
	SystemPrompt(ctx context.Context) (string, error)
}

// User-facing texts of the pipeline itself.
const (
	textOnlyNotice = "Я понимаю только текстовые сообщения. Пожалуйста, напиши текст."
	unsafePrompt   = "Извини, но этот запрос нарушает правила безопасности. " +
		"Пожалуйста, попробуй другой запрос без неприемлемого содержания."
	generatingImage = "Генерирую изображение, это может занять до 30 секунд..."
	quotaExceeded   = "Подожди немного… Ты исчерпал лимит на сегодня.\n\n" +
		"Оформи подписку, чтобы продолжить общение без ограничений!"
	genericApology = "Извини, произошла ошибка. Попробуй еще раз через минуту."
)

// Thinking-delay shape: a base plus a per-character increment, capped. Smooths
// perceived latency only; not a correctness requirement.
const (
	thinkingBase    = 500 * time.Millisecond
	thinkingPerChar = 2 * time.Millisecond
	thinkingCap     = 1500 * time.Millisecond
)

// Pipeline handles inbound user messages.
type Pipeline struct {
	mem     Memory
	policy  Policy
	gateway Gateway
	prompts PromptSource
	sender  Sender
	pending *PendingImage
	logger  *slog.Logger

	// sleep implements the thinking delay; overridable in tests.
	sleep func(d time.Duration)
}

// New creates a Pipeline. The pending table is owned by the pipeline but
// exposed so the command layer can arm it when the user issues the image
// command.
func New(mem Memory, policy Policy, gateway Gateway, prompts PromptSource, sender Sender, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		mem:     mem,
		policy:  policy,
		gateway: gateway,
		prompts: prompts,
		sender:  sender,
		pending: NewPendingImage(),
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Pending returns the image-prompt-awaiting table.
func (p *Pipeline) Pending() *PendingImage {
	return p.pending
}

// SetSender attaches the reply transport. The transport is itself constructed
// around the pipeline, so it is attached after the fact.
func (p *Pipeline) SetSender(s Sender) {
	p.sender = s
}

// HandleIncoming processes one inbound message. Any error on the chat path is
// absorbed here: it is logged for operators and the user receives a generic
// apology, never a raw error.
func (p *Pipeline) HandleIncoming(ctx context.Context, userID int64, text string, hasText bool) {
	if !hasText {
		p.send(ctx, userID, textOnlyNotice, KeyboardMain)
		return
	}

	if p.pending.TakeAndClear(userID) {
		p.handleImagePrompt(ctx, userID, text)
		return
	}

	if err := p.handleChat(ctx, userID, text); err != nil {
		p.logger.Error("message pipeline failed", "user_id", userID, "err", err)
		p.send(ctx, userID, genericApology, KeyboardMain)
	}
}

// handleImagePrompt runs the image flow: moderation, generation, reply. This
// path never touches the chat completion flow or the quota.
func (p *Pipeline) handleImagePrompt(ctx context.Context, userID int64, prompt string) {
	if !p.gateway.CheckModeration(ctx, prompt) {
		p.send(ctx, userID, unsafePrompt, KeyboardMain)
		return
	}

	p.send(ctx, userID, generatingImage, KeyboardNone)
	if err := p.sender.SendAction(ctx, userID, ActionUploadPhoto); err != nil {
		p.logger.Warn("failed to send chat action", "user_id", userID, "err", err)
	}

	ok, result := p.gateway.GenerateImage(ctx, userID, prompt, "")
	if !ok {
		p.send(ctx, userID, "Не удалось создать изображение: "+result, KeyboardMain)
		return
	}
	if err := p.sender.SendPhoto(ctx, userID, result, "Изображение по запросу: "+prompt); err != nil {
		p.logger.Error("failed to send photo", "user_id", userID, "err", err)
	}
}

// handleChat runs the plain chat flow, steps ordered as: quota gate, persist
// user turn, assemble context, complete, persist assistant turn, reply,
// summarization cadence.
func (p *Pipeline) handleChat(ctx context.Context, userID int64, text string) error {
	subscribed, err := p.policy.IsSubscribed(ctx, userID)
	if err != nil {
		return fmt.Errorf("subscription check: %w", err)
	}
	if !subscribed {
		used, limit, err := p.policy.Usage(ctx, userID)
		if err != nil {
			return fmt.Errorf("usage check: %w", err)
		}
		if used >= limit {
			p.send(ctx, userID, quotaExceeded, KeyboardSubscribe)
			return nil
		}
	}

	if err := p.mem.AppendTurn(ctx, userID, memory.RoleUser, text); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}

	window, err := p.mem.RecentWindow(ctx, userID, memory.DefaultWindowSize)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}
	summary, err := p.mem.LatestSummary(ctx, userID)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	if err := p.sender.SendAction(ctx, userID, ActionTyping); err != nil {
		p.logger.Warn("failed to send chat action", "user_id", userID, "err", err)
	}
	p.sleep(thinkingDelay(text))

	systemPrompt, err := p.prompts.SystemPrompt(ctx)
	if err != nil {
		return fmt.Errorf("load system prompt: %w", err)
	}

	tier := openai.TierStandard
	if subscribed {
		tier = openai.TierPremium
	}

	result := p.gateway.Complete(ctx, systemPrompt, summary, toChatMessages(window), text, tier)
	reply := result.Reply()

	if err := p.mem.AppendTurn(ctx, userID, memory.RoleAssistant, reply); err != nil {
		return fmt.Errorf("append assistant turn: %w", err)
	}
	p.send(ctx, userID, reply, KeyboardMain)

	if memory.ShouldSummarize(len(window)) {
		p.summarize(ctx, userID, systemPrompt, window, tier)
	}
	return nil
}

// summarize compresses the window into a short digest and records it. The
// system prompt rides along as on regular completions. A failed summarization
// is logged and skipped; it never fails the request.
func (p *Pipeline) summarize(ctx context.Context, userID int64, systemPrompt string, window []memory.Turn, tier openai.Tier) {
	result := p.gateway.Complete(ctx, systemPrompt, "", nil, memory.BuildSummaryPrompt(window), tier)
	if !result.OK() {
		p.logger.Error("summarization failed", "user_id", userID, "failure", result.Failure)
		return
	}
	if err := p.mem.RecordSummary(ctx, userID, result.Text); err != nil {
		p.logger.Error("failed to record summary", "user_id", userID, "err", err)
	}
}

func (p *Pipeline) send(ctx context.Context, userID int64, text string, kb Keyboard) {
	if err := p.sender.SendText(ctx, userID, text, kb); err != nil {
		p.logger.Error("failed to send reply", "user_id", userID, "err", err)
	}
}

// thinkingDelay is proportional to message length and capped.
func thinkingDelay(text string) time.Duration {
	d := thinkingBase + time.Duration(len(text))*thinkingPerChar
	if d > thinkingCap {
		d = thinkingCap
	}
	return d
}

func toChatMessages(window []memory.Turn) []openai.ChatMessage {
	msgs := make([]openai.ChatMessage, len(window))
	for i, t := range window {
		msgs[i] = openai.ChatMessage{Role: t.Role, Content: t.Content}
	}
	return msgs
}
