package telegram

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath is the secret path Telegram posts updates to.
func WebhookPath(token string) string { return "/webhook/" + shortHash(token) }

// WebhookURL joins the public base URL and the secret path.
func WebhookURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + WebhookPath(token)
}

// WebhookHandler decodes an update with parse (normally bot.HandleUpdate)
// and passes it on. Telegram only needs the 200.
func WebhookHandler(parse func(*http.Request) (*tgbotapi.Update, error), log *zap.Logger, handle func(tgbotapi.Update)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upd, err := parse(r)
		if err != nil {
			log.Warn("bad webhook update", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handle(*upd)
		w.WriteHeader(http.StatusOK)
	}
}

// shortHash is a 64-bit FNV-1a of s in hex; it keeps the token out of the URL.
func shortHash(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
