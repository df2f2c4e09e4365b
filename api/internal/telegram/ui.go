package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbShowText = "show_text"
	cbReset    = "reset"
)

// Buttons under a successful extraction.
func makeActionsKeyboard() tgbotapi.InlineKeyboardMarkup {
	show := tgbotapi.NewInlineKeyboardButtonData("Show text", cbShowText)
	reset := tgbotapi.NewInlineKeyboardButtonData("Reset", cbReset)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(show, reset))
}

// light escaping for legacy Markdown
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}
