package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"parimal/api/internal/app"
	"parimal/api/internal/config"
	"parimal/api/internal/handle"
	"parimal/api/internal/httpserver"
	"parimal/api/internal/logger"
	"parimal/api/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("startup failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	srv := httpserver.New("0.0.0.0:"+cfg.Port, "web", lg, a.Health)

	pages, err := web.New(a.Service, a.Store, lg, web.Options{
		Timeout:        cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		lg.Fatal("templates", zap.Error(err))
	}
	pages.Register(srv.Mux)

	handle.New(a.Service, a.Store, lg, handle.Options{
		Timeout:        cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}).Register(srv.Mux)

	if err := srv.Run(ctx); err != nil {
		lg.Fatal("http server", zap.Error(err))
	}
}
