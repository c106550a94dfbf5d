package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avdeyev/sputnik/internal/bot/commands"
)

// mainKeyboard is attached to most replies.
var mainKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(commands.ButtonHelp),
		tgbotapi.NewKeyboardButton(commands.ButtonSubscribe),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(commands.ButtonNewDialog),
		tgbotapi.NewKeyboardButton(commands.ButtonLimit),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(commands.ButtonImage),
	),
)

// subscribeKeyboard replaces the main keyboard when the user hits a premium
// gate.
var subscribeKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(commands.ButtonSubscribeLong),
	),
)

// tariffKeyboard lists the three subscription tenures with payment links.
func tariffKeyboard(link30, link90, link365 string, price30, price90, price365 int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(tariffLabel("1 месяц", price30), link30),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(tariffLabel("3 месяца", price90), link90),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(tariffLabel("12 месяцев", price365), link365),
		),
	)
}

func tariffLabel(tenure string, price int) string {
	return fmt.Sprintf("%s - %d₽", tenure, price)
}
