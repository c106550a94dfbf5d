// Package telegram is the bot's front-end: the long-polling update loop,
// command routing, keyboards and reply delivery. All conversation logic lives
// in the pipeline; this package only translates between Telegram updates and
// the bot's components.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/avdeyev/sputnik/internal/bot/commands"
	"github.com/avdeyev/sputnik/internal/bot/memory"
	"github.com/avdeyev/sputnik/internal/bot/pipeline"
	"github.com/avdeyev/sputnik/internal/bot/policy"
	"github.com/avdeyev/sputnik/internal/bot/store"
)

// broadcastRate is the fan-out ceiling for admin broadcasts, kept under
// Telegram's ~30 msg/s bot-wide flood limit.
const broadcastRate = 25

// Config holds the front-end settings.
type Config struct {
	// AdminIDs is the allowlist of Telegram user IDs permitted to run
	// administrative commands.
	AdminIDs []int64
	// WelcomeMessage opens the /start greeting.
	WelcomeMessage string
	// Subscription prices per tenure, in rubles.
	Price30Days  int
	Price90Days  int
	Price365Days int
}

// Bot wires Telegram updates to the pipeline and the administrative surface.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      Config
	store    *store.Store
	policy   *policy.Policy
	memory   *memory.Memory
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	// broadcast fan-out limiter, shared across confirmations.
	limiter *rate.Limiter

	// pendingBroadcasts holds broadcast texts awaiting inline confirmation,
	// keyed by the message ID of the /broadcast command.
	mu                sync.Mutex
	pendingBroadcasts map[int]string
}

// New authenticates against the Bot API and returns a ready Bot.
func New(token string, cfg Config, st *store.Store, pol *policy.Policy, mem *memory.Memory, pipe *pipeline.Pipeline, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:               api,
		cfg:               cfg,
		store:             st,
		policy:            pol,
		memory:            mem,
		pipeline:          pipe,
		logger:            logger,
		limiter:           rate.NewLimiter(rate.Limit(broadcastRate), 1),
		pendingBroadcasts: make(map[int]string),
	}, nil
}

// Run polls for updates until ctx is cancelled. Each update is handled on its
// own goroutine; a panicking handler is contained and logged, never fatal.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in update handler", "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	if msg.IsCommand() && adminCommands[msg.Command()] {
		b.handleAdmin(ctx, msg)
		return
	}

	switch commands.Parse(msg.Text) {
	case commands.Start:
		b.handleStart(ctx, userID)
	case commands.Help:
		b.handleHelp(userID)
	case commands.NewDialog:
		b.handleNewDialog(userID)
	case commands.Limit:
		b.handleLimit(ctx, userID)
	case commands.Subscribe:
		b.handleSubscribe(ctx, userID)
	case commands.Image:
		b.handleImage(ctx, userID)
	default:
		b.pipeline.HandleIncoming(ctx, userID, msg.Text, msg.Text != "")
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// --- pipeline.Sender implementation ---

// SendText delivers a text reply with the requested keyboard hint. The Bot
// API has no context support; ctx is accepted for interface symmetry.
func (b *Bot) SendText(_ context.Context, userID int64, text string, kb pipeline.Keyboard) error {
	msg := tgbotapi.NewMessage(userID, text)
	switch kb {
	case pipeline.KeyboardMain:
		msg.ReplyMarkup = mainKeyboard
	case pipeline.KeyboardSubscribe:
		msg.ReplyMarkup = subscribeKeyboard
	}
	_, err := b.api.Send(msg)
	return err
}

// SendPhoto delivers an image by URL with a caption and the main keyboard.
func (b *Bot) SendPhoto(_ context.Context, userID int64, url, caption string) error {
	photo := tgbotapi.NewPhoto(userID, tgbotapi.FileURL(url))
	photo.Caption = caption
	photo.ReplyMarkup = mainKeyboard
	_, err := b.api.Send(photo)
	return err
}

// SendAction shows a chat action (typing, uploading a photo).
func (b *Bot) SendAction(_ context.Context, userID int64, action pipeline.Action) error {
	_, err := b.api.Request(tgbotapi.NewChatAction(userID, string(action)))
	return err
}

// NotifyHTML delivers a standalone HTML message outside the update flow. Used
// by the expiry sweeper.
func (b *Bot) NotifyHTML(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

// Compile-time interface satisfaction check.
var _ pipeline.Sender = (*Bot)(nil)
