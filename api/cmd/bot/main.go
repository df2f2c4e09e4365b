package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"parimal/api/internal/app"
	"parimal/api/internal/config"
	"parimal/api/internal/httpserver"
	"parimal/api/internal/logger"
	"parimal/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = lg.Sync() }()
	if cfg.TelegramBotToken == "" {
		lg.Fatal("TELEGRAM_BOT_TOKEN is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("startup failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		lg.Fatal("telegram", zap.Error(err))
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:     bot,
		Svc:     a.Service,
		Store:   a.Store,
		Log:     lg,
		Timeout: cfg.RequestTimeout,
	}
	handle := func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }

	srv := httpserver.New("0.0.0.0:"+cfg.Port, "bot", lg, a.Health)

	if cfg.WebhookURL != "" {
		startWebhookMode(ctx, cfg, bot, srv, lg, handle)
	} else {
		startPollingMode(ctx, bot, srv, lg, handle)
	}
}

func startWebhookMode(ctx context.Context, cfg *config.Config, bot *tgbotapi.BotAPI, srv *httpserver.Server, lg *zap.Logger, handle func(tgbotapi.Update)) {
	public := telegram.WebhookURL(cfg.WebhookURL, bot.Token)
	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		lg.Fatal("webhook", zap.Error(err))
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		lg.Fatal("set webhook", zap.Error(err))
	}

	// answer Telegram right away; extraction can outlast its webhook timeout
	async := func(upd tgbotapi.Update) { go handle(upd) }
	srv.Mux.HandleFunc(telegram.WebhookPath(bot.Token), telegram.WebhookHandler(bot.HandleUpdate, lg, async))
	lg.Info("webhook mode", zap.String("path", telegram.WebhookPath(bot.Token)))

	if err := srv.Run(ctx); err != nil {
		lg.Fatal("http server", zap.Error(err))
	}
}

func startPollingMode(ctx context.Context, bot *tgbotapi.BotAPI, srv *httpserver.Server, lg *zap.Logger, handle func(tgbotapi.Update)) {
	// a previously set webhook blocks getUpdates
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		lg.Warn("delete webhook", zap.Error(err))
	}
	go func() {
		if err := srv.Run(ctx); err != nil {
			lg.Error("http server", zap.Error(err))
		}
	}()

	lg.Info("polling mode")
	telegram.RunPolling(ctx, bot, lg, handle)
}
