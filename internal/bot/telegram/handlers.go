package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "🤖 <b>Что я умею:</b>\n\n" +
	"✅ Отвечаю на вопросы и поддерживаю диалог\n" +
	"✅ Помню контекст нашего разговора\n" +
	"✅ Могу быть эмпатичным собеседником\n" +
	"✅ Генерирую изображения по описанию (для подписчиков)\n\n" +
	"<b>Команды:</b>\n" +
	"/start - Начать диалог\n" +
	"/help - Показать эту справку\n" +
	"/subscribe - Оформить подписку\n" +
	"/new - Начать новый диалог\n" +
	"/limit - Проверить лимит сообщений\n" +
	"/image - Сгенерировать изображение\n\n" +
	"<b>Подписка даёт:</b>\n" +
	"• Доступ к GPT-4o (самая мощная модель)\n" +
	"• Неограниченное количество сообщений\n" +
	"• Генерация изображений через DALL-E\n" +
	"• Приоритетную обработку запросов"

const subscribeText = "Выбери подписку для доступа к GPT-4o без ограничений:\n\n" +
	"✅ Без лимита на количество сообщений\n" +
	"✅ Доступ к самой мощной модели GPT-4o\n" +
	"✅ Генерация изображений через DALL-E\n" +
	"✅ Приоритетная обработка запросов\n" +
	"✅ Долгосрочная память для более глубоких диалогов"

const imagePromptText = "Опиши изображение, которое хочешь создать. Будь максимально конкретным.\n\n" +
	"Например: 'Космонавт на лошади в стиле акварели'"

const imageSubscribeText = "Генерация изображений доступна только для пользователей с подпиской.\n" +
	"Оформи подписку, чтобы создавать изображения!"

func (b *Bot) handleStart(ctx context.Context, userID int64) {
	greeting := b.cfg.WelcomeMessage

	summary, err := b.memory.LatestSummary(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load summary for greeting", "user_id", userID, "err", err)
	}
	if summary != "" {
		greeting += "\n\n<b>Краткое резюме прошлой сессии:</b> " + summary
	}

	b.replyHTML(userID, greeting, mainKeyboard)
}

func (b *Bot) handleHelp(userID int64) {
	b.replyHTML(userID, helpText, nil)
}

func (b *Bot) handleNewDialog(userID int64) {
	// History stays in the store; the user just gets a fresh conversational
	// opening.
	b.reply(userID, "Начинаем новый диалог! О чём хочешь поговорить?", mainKeyboard)
}

func (b *Bot) handleLimit(ctx context.Context, userID int64) {
	subscribed, err := b.policy.IsSubscribed(ctx, userID)
	if err != nil {
		b.logger.Error("subscription check failed", "user_id", userID, "err", err)
		b.reply(userID, "Извини, произошла ошибка. Попробуй еще раз через минуту.", mainKeyboard)
		return
	}
	if subscribed {
		b.reply(userID, "У тебя активна подписка! Ты можешь отправлять неограниченное количество сообщений 🎉", nil)
		return
	}

	used, limit, err := b.policy.Usage(ctx, userID)
	if err != nil {
		b.logger.Error("usage check failed", "user_id", userID, "err", err)
		b.reply(userID, "Извини, произошла ошибка. Попробуй еще раз через минуту.", mainKeyboard)
		return
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	b.replyHTML(userID, fmt.Sprintf(
		"📊 <b>Твой лимит на сегодня:</b>\n\n"+
			"✅ Использовано: %d из %d\n"+
			"✅ Осталось: %d сообщений\n\n"+
			"Для снятия ограничений оформи подписку!",
		used, limit, remaining,
	), mainKeyboard)
}

func (b *Bot) handleSubscribe(ctx context.Context, userID int64) {
	subscribed, err := b.policy.IsSubscribed(ctx, userID)
	if err != nil {
		b.logger.Error("subscription check failed", "user_id", userID, "err", err)
		b.reply(userID, "Извини, произошла ошибка. Попробуй еще раз через минуту.", mainKeyboard)
		return
	}
	if subscribed {
		b.reply(userID, "У тебя уже есть активная подписка! Наслаждайся общением с GPT-4o без ограничений.", mainKeyboard)
		return
	}

	keyboard := tariffKeyboard(
		b.policy.PaymentLink(userID, 30, b.cfg.Price30Days),
		b.policy.PaymentLink(userID, 90, b.cfg.Price90Days),
		b.policy.PaymentLink(userID, 365, b.cfg.Price365Days),
		b.cfg.Price30Days, b.cfg.Price90Days, b.cfg.Price365Days,
	)
	b.reply(userID, subscribeText, keyboard)
}

func (b *Bot) handleImage(ctx context.Context, userID int64) {
	subscribed, err := b.policy.IsSubscribed(ctx, userID)
	if err != nil {
		b.logger.Error("subscription check failed", "user_id", userID, "err", err)
		b.reply(userID, "Извини, произошла ошибка. Попробуй еще раз через минуту.", mainKeyboard)
		return
	}
	if !subscribed {
		b.reply(userID, imageSubscribeText, subscribeKeyboard)
		return
	}

	b.pipeline.Pending().Arm(userID)
	b.reply(userID, imagePromptText, mainKeyboard)
}

// reply sends plain text with an optional reply markup.
func (b *Bot) reply(userID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(userID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send reply", "user_id", userID, "err", err)
	}
}

// replyHTML sends HTML-formatted text with an optional reply markup.
func (b *Bot) replyHTML(userID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send reply", "user_id", userID, "err", err)
	}
}
