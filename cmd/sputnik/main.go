package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/avdeyev/sputnik/common/environment"
	"github.com/avdeyev/sputnik/common/version"
	"github.com/avdeyev/sputnik/internal/bot/app"
	"github.com/avdeyev/sputnik/internal/bot/openai"
)

const defaultWelcome = "Привет! Я твой помощник. Готов выслушать и помочь 💬"

func main() {
	// A missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	logger := newLogger()
	logger.Info("sputnik starting", "version", version.Info())

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	bot, err := app.New(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize bot: %v\n", err)
		os.Exit(1)
	}
	defer bot.Stop()

	if err := bot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running bot: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig assembles the application configuration from the environment.
func loadConfig() (*app.Config, error) {
	botToken, err := environment.RequiredString("BOT_TOKEN")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		BotToken:     botToken,
		DatabasePath: environment.StringOr("DB_PATH", "./sputnik.db"),
		OpenAI: openai.Config{
			APIKey:       apiKey,
			BaseURL:      environment.StringOr("OPENAI_BASE_URL", ""),
			DefaultModel: environment.StringOr("DEFAULT_MODEL", "gpt-3.5-turbo"),
			PremiumModel: environment.StringOr("PREMIUM_MODEL", "gpt-4o"),
			ImageModel:   environment.StringOr("IMAGE_MODEL", "dall-e-3"),
			ImageSize:    environment.StringOr("IMAGE_SIZE", "1024x1024"),
			ImageQuality: environment.StringOr("IMAGE_QUALITY", "standard"),
			MaxTokens:    environment.IntOr("MAX_TOKENS", 1024),
			Temperature:  environment.Float64Or("TEMPERATURE", 0.7),
			TopP:         environment.Float64Or("TOP_P", 1.0),
			Timeout:      environment.DurationOr("OPENAI_TIMEOUT", 0),
		},
		AdminIDs:         environment.Int64SliceOr("ADMIN_IDS", nil),
		WelcomeMessage:   environment.StringOr("WELCOME_MESSAGE", defaultWelcome),
		FreeUserLimit:    environment.IntOr("FREE_USER_LIMIT", 20),
		Price30Days:      environment.IntOr("PRICE_30_DAYS", 299),
		Price90Days:      environment.IntOr("PRICE_90_DAYS", 799),
		Price365Days:     environment.IntOr("PRICE_365_DAYS", 2990),
		NotifyBeforeDays: environment.IntOr("NOTIFY_BEFORE_EXPIRATION", 3),
	}, nil
}

// newLogger builds the process-wide slog logger honoring LOG_LEVEL.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(environment.StringOr("LOG_LEVEL", "INFO")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
