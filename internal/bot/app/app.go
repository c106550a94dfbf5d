// Package app assembles the bot: store, model client, policy, memory,
// pipeline, Telegram front-end and the expiry sweeper.
package app

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avdeyev/sputnik/internal/bot/memory"
	"github.com/avdeyev/sputnik/internal/bot/notify"
	"github.com/avdeyev/sputnik/internal/bot/openai"
	"github.com/avdeyev/sputnik/internal/bot/pipeline"
	"github.com/avdeyev/sputnik/internal/bot/policy"
	"github.com/avdeyev/sputnik/internal/bot/store"
	"github.com/avdeyev/sputnik/internal/bot/telegram"
)

//go:embed prompts/default_prompt.txt
var defaultPrompt string

// Config holds application configuration.
type Config struct {
	BotToken     string
	DatabasePath string

	OpenAI openai.Config

	// AdminIDs is the allowlist of Telegram user IDs permitted to run
	// administrative commands.
	AdminIDs []int64

	// WelcomeMessage opens the /start greeting.
	WelcomeMessage string

	// FreeUserLimit is the free-tier message ceiling per trailing day.
	FreeUserLimit int

	// Subscription prices per tenure, in rubles.
	Price30Days  int
	Price90Days  int
	Price365Days int

	// NotifyBeforeDays is how many days before expiry the renewal reminder
	// goes out.
	NotifyBeforeDays int
}

// App is the assembled bot.
type App struct {
	config  *Config
	store   *store.Store
	bot     *telegram.Bot
	sweeper *notify.Sweeper
	logger  *slog.Logger
}

// New builds the application. The embedded default system prompt is seeded on
// first run only; an admin-set prompt survives restarts.
func New(config *Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := seedSystemPrompt(context.Background(), st, logger); err != nil {
		st.Close()
		return nil, err
	}

	pol := policy.New(st, config.FreeUserLimit, logger)
	mem := memory.New(st)
	gateway := openai.New(config.OpenAI, pol, logger)

	pipe := pipeline.New(mem, pol, gateway, st, nil, logger)
	bot, err := telegram.New(config.BotToken, telegram.Config{
		AdminIDs:       config.AdminIDs,
		WelcomeMessage: config.WelcomeMessage,
		Price30Days:    config.Price30Days,
		Price90Days:    config.Price90Days,
		Price365Days:   config.Price365Days,
	}, st, pol, mem, pipe, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	pipe.SetSender(bot)

	sweeper := notify.New(st, bot, config.NotifyBeforeDays, logger)

	return &App{
		config:  config,
		store:   st,
		bot:     bot,
		sweeper: sweeper,
		logger:  logger,
	}, nil
}

// Run starts polling and the expiry sweeper, blocking until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.sweeper.Run(ctx)

	if err := a.bot.Run(ctx); err != nil {
		return fmt.Errorf("failed to run bot: %w", err)
	}

	a.logger.Info("shutting down")
	return nil
}

// Stop closes the application's resources.
func (a *App) Stop() {
	a.logger.Info("closing database")
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", "err", err)
	}
}

func seedSystemPrompt(ctx context.Context, st *store.Store, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	current, err := st.SystemPrompt(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system prompt: %w", err)
	}
	if current != "" {
		return nil
	}

	prompt := strings.TrimSpace(defaultPrompt)
	if prompt == "" {
		return nil
	}
	if err := st.SetSystemPrompt(ctx, prompt); err != nil {
		return fmt.Errorf("failed to seed system prompt: %w", err)
	}
	logger.Info("default system prompt loaded")
	return nil
}
