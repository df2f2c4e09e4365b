// Package telegram exposes the extraction and entity query stages as a
// Telegram bot. Every chat is one session.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"parimal/api/internal/apperr"
	"parimal/api/internal/entity"
	"parimal/api/internal/logger"
	"parimal/api/internal/session"
)

const maxMessageLen = 3900

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot   Bot
	Svc   *entity.Service
	Store session.Store
	Log   *zap.Logger

	// Timeout bounds one extraction or query.
	Timeout time.Duration
	// AlbumDelay is how long to wait for more photos of the same album.
	AlbumDelay time.Duration
	HTTPClient *http.Client
}

func sessionID(chatID int64) string { return fmt.Sprintf("tg:%d", chatID) }

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		r.search(ctx, msg.Chat.ID, msg.Text)
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "text":
		r.showText(ctx, cid)
	case "search":
		r.search(ctx, cid, args)
	case "engine":
		r.engine(ctx, cid, args)
	case "reset":
		r.reset(ctx, cid)
	default:
		r.send(cid, "Unknown command. "+commandsLine)
	}
}

const noTextMessage = "No text yet: send a photo first and I will extract its text."

const commandsLine = "Commands: /text, /search <keyword>, /engine [name], /reset"

const helpText = "PARIMAL: text extraction and entity search.\n\n" +
	"1. Send a photo (JPG or PNG) and I will extract its text.\n" +
	"2. Then send a keyword, for example \"weight\", and I will find its value with the unit.\n\n" +
	commandsLine

func (r *Router) search(ctx context.Context, cid int64, keyword string) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	st, err := r.load(ctx, cid)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	if st.HasText && strings.TrimSpace(keyword) != "" {
		r.send(cid, fmt.Sprintf("Searching for '%s' in the extracted text...", keyword))
	}
	ans, err := r.Svc.Query(ctx, st, keyword)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	// the generator's answer goes out as plain text, unmodified
	r.sendLong(cid, ans.Text)
}

func (r *Router) showText(ctx context.Context, cid int64) {
	st, err := r.load(ctx, cid)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	if !st.HasText {
		r.send(cid, noTextMessage)
		return
	}
	r.sendLong(cid, "Extracted Text:\n\n"+st.ExtractedText)
}

func (r *Router) engine(ctx context.Context, cid int64, name string) {
	st, err := r.load(ctx, cid)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	engines := r.Svc.Engines()
	if name == "" {
		cur := st.Engine
		if cur == "" {
			cur = engines.Default()
		}
		r.send(cid, "Current OCR engine: "+cur+"\nAvailable: "+strings.Join(engines.Names(), ", ")+
			"\nUsage: /engine <name>, /engine default")
		return
	}
	if strings.EqualFold(name, "default") {
		name = ""
	}
	if err := r.Svc.SetEngine(st, name); err != nil {
		r.send(cid, "Unknown OCR engine. Available: "+strings.Join(engines.Names(), ", "))
		return
	}
	if err := r.Store.Save(ctx, st); err != nil {
		r.sendError(cid, apperr.SessionStoreFailed("save", err))
		return
	}
	cur := st.Engine
	if cur == "" {
		cur = engines.Default()
	}
	r.send(cid, "OCR engine: "+cur)
}

func (r *Router) reset(ctx context.Context, cid int64) {
	if err := r.Store.Delete(ctx, sessionID(cid)); err != nil {
		r.sendError(cid, apperr.SessionStoreFailed("delete", err))
		return
	}
	r.send(cid, "Session cleared. Send a new photo to start again.")
}

func (r *Router) load(ctx context.Context, cid int64) (*session.State, error) {
	st, err := r.Store.Load(ctx, sessionID(cid))
	if err != nil {
		return nil, apperr.SessionStoreFailed("load", err)
	}
	return st, nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	t := r.Timeout
	if t <= 0 {
		t = 180 * time.Second
	}
	return context.WithTimeout(ctx, t)
}

func (r *Router) log() *zap.Logger { return logger.OrNop(r.Log) }

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("telegram send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) sendError(chatID int64, err error) {
	e := apperr.From(err)
	switch apperr.CategoryOf(err) {
	case apperr.CategoryPrecondition:
		if errors.Is(err, apperr.ErrTextNotExtracted) {
			r.send(chatID, noTextMessage)
			return
		}
		r.send(chatID, e.Message)
	case apperr.CategoryValidation:
		r.send(chatID, e.Message)
	default:
		r.log().Error("telegram action failed", zap.Int64("chat", chatID), zap.Error(err))
		r.send(chatID, "⚠️ "+e.Message+". Please try again.")
	}
}

// sendLong sends text in as many messages as the Telegram size limit needs.
func (r *Router) sendLong(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		r.send(chatID, part)
	}
}

// splitMessage cuts text into parts of at most limit bytes, preferring a
// newline in the second half of a part and never splitting a rune. The parts
// concatenate back to text.
func splitMessage(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl >= cut/2 {
			cut = nl + 1
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return append(parts, text)
}
