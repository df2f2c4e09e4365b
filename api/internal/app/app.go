// Package app builds the shared dependencies of every binary from the
// configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parimal/api/internal/config"
	"parimal/api/internal/entity"
	"parimal/api/internal/llm"
	"parimal/api/internal/llm/gemini"
	"parimal/api/internal/llm/openai"
	"parimal/api/internal/ocr"
	"parimal/api/internal/ocr/azure"
	"parimal/api/internal/ocr/tesseract"
	"parimal/api/internal/ocr/yandex"
	"parimal/api/internal/session"
)

type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Service *entity.Service
	Store   session.Store
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	engines, err := NewEngines(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	log.Info("app ready",
		zap.String("ocr_default", engines.Default()),
		zap.Strings("ocr_engines", engines.Names()),
		zap.String("llm", gen.Name()),
		zap.String("session_backend", cfg.Session.Backend))

	return &App{
		Config:  cfg,
		Log:     log,
		Service: entity.NewService(engines, gen, log, cfg.MaxImagePixels),
		Store:   store,
	}, nil
}

// NewEngines registers every OCR engine whose credentials are present; the
// configured one becomes the default.
func NewEngines(cfg *config.Config) (*ocr.Engines, error) {
	if cfg.OCREngine == "tesseract" && !tesseract.Enabled {
		return nil, fmt.Errorf("OCR_ENGINE=tesseract needs a binary built with -tags ocr: %w", tesseract.ErrNotEnabled)
	}
	var list []ocr.Engine
	if cfg.Azure.Enabled() {
		list = append(list, azure.New(cfg.Azure.Endpoint, cfg.Azure.Key))
	}
	if cfg.Yandex.Enabled() {
		list = append(list, yandex.New(cfg.Yandex.OAuthToken, cfg.Yandex.FolderID, cfg.Yandex.Langs))
	}
	if tesseract.Enabled {
		list = append(list, tesseract.New(cfg.Tesseract.Langs))
	}
	return ocr.NewEngines(cfg.OCREngine, list...)
}

func NewGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLMProvider {
	case "gemini":
		return gemini.New(cfg.Gemini.APIKey, cfg.Gemini.Model), nil
	case "openai":
		return openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func NewStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, error) {
	sc := cfg.Session
	switch sc.Backend {
	case "memory":
		s := session.NewMemoryStore(sc.TTL)
		go purgeLoop(ctx, s, sc.TTL, log)
		return s, nil
	case "redis":
		s := session.NewRedisStore(session.NewRedisClient(session.RedisConfig{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		}), sc.TTL)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "postgres", "sqlite":
		driver, dsn := session.DriverPostgres, sc.DatabaseURL
		if sc.Backend == "sqlite" {
			driver, dsn = session.DriverSQLite, sc.SQLitePath
		}
		db, err := session.OpenSQL(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		s := session.NewSQLStore(db, driver, sc.TTL)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("create sessions table: %w", err)
		}
		go purgeLoop(ctx, s, sc.TTL, log)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", sc.Backend)
	}
}

type purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeLoop removes expired sessions once per TTL (at most hourly).
func purgeLoop(ctx context.Context, s purger, ttl time.Duration, log *zap.Logger) {
	every := min(ttl, time.Hour)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeOlderThan(ctx, time.Now().Add(-ttl))
			if err != nil {
				log.Warn("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}

// Health pings the session backend when it supports it.
func (a *App) Health(ctx context.Context) error {
	if p, ok := a.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *App) Close() error { return a.Store.Close() }
