// Package commands resolves an inbound message into one of a closed set of
// recognized command variants. Both slash commands and the reply-keyboard
// button labels map onto the same variants, so the rest of the bot never
// matches on display strings.
package commands

// Kind is the resolved command variant.
type Kind int

const (
	// PlainText is any message that is not a recognized command; it flows
	// into the chat pipeline.
	PlainText Kind = iota
	Start
	Help
	NewDialog
	Limit
	Subscribe
	Image
)

// Button labels of the main reply keyboard. The labels double as command
// aliases when the user taps them.
const (
	ButtonHelp          = "❓ Помощь"
	ButtonSubscribe     = "💳 Подписка"
	ButtonSubscribeLong = "💳 Оформить подписку"
	ButtonNewDialog     = "🔄 Новый диалог"
	ButtonLimit         = "📊 Мой лимит"
	ButtonImage         = "🖼 Создать изображение"
)

var byText = map[string]Kind{
	"/start":            Start,
	"/help":             Help,
	ButtonHelp:          Help,
	"/new":              NewDialog,
	ButtonNewDialog:     NewDialog,
	"/limit":            Limit,
	ButtonLimit:         Limit,
	"/subscribe":        Subscribe,
	ButtonSubscribe:     Subscribe,
	ButtonSubscribeLong: Subscribe,
	"/image":            Image,
	ButtonImage:         Image,
}

// Parse resolves the message text to a command variant. Unrecognized text is
// PlainText.
func Parse(text string) Kind {
	if kind, ok := byText[text]; ok {
		return kind
	}
	return PlainText
}
