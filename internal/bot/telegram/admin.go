package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// adminCommands is the closed set of administrative slash commands.
var adminCommands = map[string]bool{
	"admin":            true,
	"stats":            true,
	"users":            true,
	"broadcast":        true,
	"set_prompt":       true,
	"show_prompt":      true,
	"add_subscription": true,
	"check_sub":        true,
	"clean_db":         true,
}

const adminPanelText = "🔑 <b>Админ-панель</b>\n\n" +
	"<b>Основные команды:</b>\n" +
	"/stats - Статистика использования\n" +
	"/users - Список пользователей\n" +
	"/broadcast - Отправить сообщение всем\n\n" +
	"<b>Настройки бота:</b>\n" +
	"/set_prompt - Изменить системный промпт\n" +
	"/show_prompt - Показать текущий промпт\n" +
	"/clean_db - Очистить старые сообщения\n\n" +
	"<b>Управление подписками:</b>\n" +
	"/add_subscription ID DAYS - Выдать подписку\n" +
	"/check_sub ID - Проверить подписку пользователя"

func (b *Bot) handleAdmin(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if !b.isAdmin(userID) {
		b.reply(userID, "Доступ запрещён.", nil)
		return
	}

	switch msg.Command() {
	case "admin":
		b.replyHTML(userID, adminPanelText, nil)
	case "stats":
		b.handleStats(ctx, userID)
	case "users":
		b.handleUsers(ctx, userID)
	case "broadcast":
		b.handleBroadcast(msg)
	case "set_prompt":
		b.handleSetPrompt(ctx, msg)
	case "show_prompt":
		b.handleShowPrompt(ctx, userID)
	case "add_subscription":
		b.handleAddSubscription(ctx, msg)
	case "check_sub":
		b.handleCheckSub(ctx, msg)
	case "clean_db":
		b.handleCleanDB(msg)
	}
}

func (b *Bot) handleStats(ctx context.Context, adminID int64) {
	stats, err := b.store.Stats(ctx, time.Now())
	if err != nil {
		b.reply(adminID, fmt.Sprintf("❌ Ошибка: %v", err), nil)
		return
	}

	users := stats.Users
	if users < 1 {
		users = 1
	}
	conversion := float64(stats.Subscribers) / float64(users) * 100

	b.replyHTML(adminID, fmt.Sprintf(
		"📊 <b>Статистика на %s</b>\n\n"+
			"👥 Пользователей: %d\n"+
			"💳 Активных подписчиков: %d\n"+
			"💬 Сообщений за день: %d\n\n"+
			"Коэффициент конверсии: %.1f%%",
		time.Now().Format("02.01.2006"),
		stats.Users, stats.Subscribers, stats.MessagesToday, conversion,
	), nil)
}

func (b *Bot) handleUsers(ctx context.Context, adminID int64) {
	users, err := b.store.ListUsers(ctx)
	if err != nil {
		b.reply(adminID, fmt.Sprintf("❌ Ошибка: %v", err), nil)
		return
	}
	if len(users) == 0 {
		b.reply(adminID, "Пользователей пока нет.", nil)
		return
	}

	total := len(users)
	if len(users) > 20 {
		users = users[:20]
	}
	var lines []string
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("ID: %d — Активность: %s", u.ID, u.LastActive.Format("02.01 15:04")))
	}

	b.replyHTML(adminID, fmt.Sprintf(
		"👥 <b>Последние %d пользователей:</b>\n\n%s\n\nВсего пользователей: %d",
		len(users), strings.Join(lines, "\n"), total,
	), nil)
}

func (b *Bot) handleBroadcast(msg *tgbotapi.Message) {
	adminID := msg.From.ID
	text := msg.CommandArguments()
	if text == "" {
		b.reply(adminID, "Укажите текст для рассылки после команды.", nil)
		return
	}

	b.mu.Lock()
	b.pendingBroadcasts[msg.MessageID] = text
	b.mu.Unlock()

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("broadcast_confirm_%d", msg.MessageID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "broadcast_cancel"),
		),
	)

	preview := tgbotapi.NewMessage(adminID, fmt.Sprintf(
		"<b>Предпросмотр сообщения:</b>\n\n%s\n\n"+
			"Сообщение будет отправлено всем пользователям. Подтвердите действие.", text))
	preview.ParseMode = tgbotapi.ModeHTML
	preview.ReplyMarkup = keyboard
	if _, err := b.api.Send(preview); err != nil {
		b.logger.Error("failed to send broadcast preview", "err", err)
	}
}

func (b *Bot) handleSetPrompt(ctx context.Context, msg *tgbotapi.Message) {
	adminID := msg.From.ID
	prompt := msg.CommandArguments()
	if prompt == "" {
		b.reply(adminID, "Укажите текст промпта после команды.\n"+
			"Пример: /set_prompt Ты — дружелюбный ассистент. Отвечай коротко и по делу.", nil)
		return
	}

	if err := b.store.SetSystemPrompt(ctx, prompt); err != nil {
		b.reply(adminID, fmt.Sprintf("❌ Ошибка: %v", err), nil)
		return
	}
	b.reply(adminID, "✅ Промпт обновлён.", nil)
}

func (b *Bot) handleShowPrompt(ctx context.Context, adminID int64) {
	prompt, err := b.store.SystemPrompt(ctx)
	if err != nil {
		b.reply(adminID, fmt.Sprintf("❌ Ошибка: %v", err), nil)
		return
	}
	if prompt == "" {
		b.reply(adminID, "Системный промпт не задан.", nil)
		return
	}
	b.replyHTML(adminID, "📝 <b>Текущий системный промпт:</b>\n\n"+prompt, nil)
}

func (b *Bot) handleAddSubscription(ctx context.Context, msg *tgbotapi.Message) {
	adminID := msg.From.ID
	parts := strings.Fields(msg.CommandArguments())
	if len(parts) < 2 {
		b.replyHTML(adminID, "ℹ️ <b>Использование:</b>\n"+
			"/add_subscription USER_ID DAYS\n\n"+
			"<b>Пример:</b> /add_subscription 123456789 30", nil)
		return
	}

	userID, errID := strconv.ParseInt(parts[0], 10, 64)
	days, errDays := strconv.Atoi(parts[1])
	if errID != nil || errDays != nil {
		b.reply(adminID, "❌ Неверный формат. USER_ID и DAYS должны быть числами.", nil)
		return
	}
	if days <= 0 {
		b.reply(adminID, "❌ Количество дней должно быть положительным числом.", nil)
		return
	}

	expiresAt, err := b.policy.Grant(ctx, userID, days)
	if err != nil {
		b.reply(adminID, fmt.Sprintf("❌ Ошибка: %v", err), nil)
		return
	}

	b.reply(adminID, fmt.Sprintf(
		"✅ Подписка для пользователя %d добавлена!\nДействует до: %s",
		userID, expiresAt.Format("02.01.2006 15:04"),
	), nil)

	notice := tgbotapi.NewMessage(userID, fmt.Sprintf(
		"🎉 Поздравляем! Тебе активирована подписка на %d дней.\n"+
			"Теперь у тебя доступ к GPT-4o без ограничений!", days))
	if _, err := b.api.Send(notice); err != nil {
		b.reply(adminID, "⚠️ Не удалось отправить уведомление пользователю.", nil)
	}
}

func (b *Bot) handleCheckSub(ctx context.Context, msg *tgbotapi.Message) {
	adminID := msg.From.ID
	parts := strings.Fields(msg.CommandArguments())
	if len(parts) < 1 {
		b.reply(adminID, "Укажите ID пользователя: /check_sub USER_ID", nil)
		return
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		b.reply(adminID, "❌ Неверный формат ID пользователя", nil)
		return
	}

	sub, err := b.store.EffectiveSubscription(ctx, userID, time.Now())
	if err != nil {
		b.reply(adminID, fmt.Sprintf("❌ Ошибка: %v", err), nil)
		return
	}
	if sub == nil {
		b.reply(adminID, fmt.Sprintf("❌ У пользователя %d нет активной подписки", userID), nil)
		return
	}
	b.reply(adminID, fmt.Sprintf(
		"✅ У пользователя %d есть активная подписка\nДействует до: %s",
		userID, sub.ExpiresAt.Format("02.01.2006 15:04"),
	), nil)
}

const defaultRetentionDays = 30

func (b *Bot) handleCleanDB(msg *tgbotapi.Message) {
	adminID := msg.From.ID
	days := defaultRetentionDays

	if args := strings.Fields(msg.CommandArguments()); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			b.reply(adminID, "❌ Неверный формат. Укажите количество дней числом.", nil)
			return
		}
		days = n
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("clean_confirm_%d", days)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "clean_cancel"),
		),
	)

	warning := tgbotapi.NewMessage(adminID, fmt.Sprintf(
		"⚠️ <b>Внимание!</b>\n\n"+
			"Вы собираетесь удалить все сообщения старше %d дней.\n"+
			"Эта операция необратима. Подтвердите действие.", days))
	warning.ParseMode = tgbotapi.ModeHTML
	warning.ReplyMarkup = keyboard
	if _, err := b.api.Send(warning); err != nil {
		b.logger.Error("failed to send cleanup confirmation", "err", err)
	}
}

// --- inline confirmations ---

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	if !b.isAdmin(cb.From.ID) {
		b.answerCallback(cb.ID, "Доступ запрещён.")
		return
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, "broadcast_confirm_"):
		b.confirmBroadcast(ctx, cb, strings.TrimPrefix(data, "broadcast_confirm_"))
	case data == "broadcast_cancel":
		b.editCallbackMessage(cb, "❌ Рассылка отменена.")
		b.answerCallback(cb.ID, "")
	case strings.HasPrefix(data, "clean_confirm_"):
		b.confirmCleanup(ctx, cb, strings.TrimPrefix(data, "clean_confirm_"))
	case data == "clean_cancel":
		b.editCallbackMessage(cb, "❌ Операция отменена.")
		b.answerCallback(cb.ID, "")
	}
}

func (b *Bot) confirmBroadcast(ctx context.Context, cb *tgbotapi.CallbackQuery, idArg string) {
	messageID, err := strconv.Atoi(idArg)
	if err != nil {
		b.answerCallback(cb.ID, "")
		return
	}

	b.mu.Lock()
	text, ok := b.pendingBroadcasts[messageID]
	delete(b.pendingBroadcasts, messageID)
	b.mu.Unlock()
	if !ok {
		b.editCallbackMessage(cb, "Не нашёл текст рассылки. Отправьте /broadcast заново.")
		b.answerCallback(cb.ID, "")
		return
	}

	users, err := b.store.ListUsers(ctx)
	if err != nil {
		b.editCallbackMessage(cb, fmt.Sprintf("❌ Ошибка: %v", err))
		b.answerCallback(cb.ID, "")
		return
	}

	b.editCallbackMessage(cb, fmt.Sprintf("Отправка сообщений...\nОбработано: 0 из %d", len(users)))
	b.answerCallback(cb.ID, "")

	var delivered, failed int
	for i, u := range users {
		if err := b.limiter.Wait(ctx); err != nil {
			break
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(u.ID, text)); err != nil {
			b.logger.Error("broadcast delivery failed", "user_id", u.ID, "err", err)
			failed++
		} else {
			delivered++
		}
		if i%10 == 0 {
			b.editCallbackMessage(cb, fmt.Sprintf("Отправка сообщений...\nОбработано: %d из %d", i+1, len(users)))
		}
	}

	b.editCallbackMessage(cb, fmt.Sprintf(
		"✅ Рассылка завершена.\nДоставлено: %d\nНе доставлено: %d", delivered, failed))
}

func (b *Bot) confirmCleanup(ctx context.Context, cb *tgbotapi.CallbackQuery, daysArg string) {
	days, err := strconv.Atoi(daysArg)
	if err != nil {
		b.answerCallback(cb.ID, "")
		return
	}

	b.editCallbackMessage(cb, "🔄 Удаление старых сообщений...")
	b.answerCallback(cb.ID, "")

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := b.store.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		b.editCallbackMessage(cb, fmt.Sprintf("❌ Ошибка: %v", err))
		return
	}

	b.logger.Info("retention cleanup completed", "deleted", deleted, "days", days)
	b.editCallbackMessage(cb, fmt.Sprintf(
		"✅ Очистка завершена.\nУдалено %d сообщений старше %d дней.", deleted, days))
}

func (b *Bot) editCallbackMessage(cb *tgbotapi.CallbackQuery, text string) {
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("failed to edit message", "err", err)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Error("failed to answer callback", "err", err)
	}
}
