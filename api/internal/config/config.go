package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	MaxImagePixels int

	LogLevel  string
	LogFormat string

	OCREngine string
	Azure     AzureConfig
	Yandex    YandexConfig
	Tesseract TesseractConfig

	LLMProvider string
	Gemini      GeminiConfig
	OpenAI      OpenAIConfig

	Session SessionConfig

	TelegramBotToken string
	WebhookURL       string
}

// AzureConfig points at an Azure AI Vision resource.
type AzureConfig struct {
	Endpoint string
	Key      string
}

type YandexConfig struct {
	OAuthToken string
	FolderID   string
	Langs      []string
}

type TesseractConfig struct {
	Langs []string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// OpenAIConfig also serves OpenAI-compatible endpoints such as DeepSeek.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type SessionConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	SQLitePath    string
}

var defaults = map[string]any{
	"port":                "8000",
	"request_timeout":     "180s",
	"max_upload_bytes":    20 << 20,
	"max_image_pixels":    18_000_000,
	"log_level":           "info",
	"log_format":          "console",
	"ocr_engine":          "azure",
	"ai_service_endpoint": "",
	"ai_service_key":      "",
	"yc_oauth_token":      "",
	"yc_folder_id":        "",
	"yandex_ocr_langs":    "ru,en",
	"tesseract_langs":     "eng",
	"llm_provider":        "gemini",
	"gemini_api_key":      "",
	"gemini_model":        "gemini-2.5-flash",
	"openai_api_key":      "",
	"openai_model":        "gpt-4o-mini",
	"openai_base_url":     "https://api.openai.com/v1",
	"session_backend":     "memory",
	"session_ttl":         "24h",
	"redis_addr":          "localhost:6379",
	"redis_password":      "",
	"redis_db":            0,
	"database_url":        "",
	"sqlite_path":         "parimal.db",
	"telegram_bot_token":  "",
	"webhook_url":         "",
}

// Load reads .env (if any), an optional configs/config.yaml and the process
// environment, in increasing priority, and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:           strings.TrimSpace(v.GetString("port")),
		RequestTimeout: v.GetDuration("request_timeout"),
		MaxUploadBytes: v.GetInt64("max_upload_bytes"),
		MaxImagePixels: v.GetInt("max_image_pixels"),

		LogLevel:  strings.ToLower(v.GetString("log_level")),
		LogFormat: strings.ToLower(v.GetString("log_format")),

		OCREngine: strings.ToLower(strings.TrimSpace(v.GetString("ocr_engine"))),
		Azure: AzureConfig{
			Endpoint: strings.TrimRight(strings.TrimSpace(v.GetString("ai_service_endpoint")), "/"),
			Key:      strings.TrimSpace(v.GetString("ai_service_key")),
		},
		Yandex: YandexConfig{
			OAuthToken: strings.TrimSpace(v.GetString("yc_oauth_token")),
			FolderID:   strings.TrimSpace(v.GetString("yc_folder_id")),
			Langs:      splitList(v.GetString("yandex_ocr_langs")),
		},
		Tesseract: TesseractConfig{
			Langs: splitList(v.GetString("tesseract_langs")),
		},

		LLMProvider: strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(v.GetString("gemini_api_key")),
			Model:  strings.TrimSpace(v.GetString("gemini_model")),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(v.GetString("openai_api_key")),
			Model:   strings.TrimSpace(v.GetString("openai_model")),
			BaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("openai_base_url")), "/"),
		},

		Session: SessionConfig{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("session_backend"))),
			TTL:           v.GetDuration("session_ttl"),
			RedisAddr:     v.GetString("redis_addr"),
			RedisPassword: v.GetString("redis_password"),
			RedisDB:       v.GetInt("redis_db"),
			DatabaseURL:   strings.TrimSpace(v.GetString("database_url")),
			SQLitePath:    v.GetString("sqlite_path"),
		},

		TelegramBotToken: strings.TrimSpace(v.GetString("telegram_bot_token")),
		WebhookURL:       strings.TrimSpace(v.GetString("webhook_url")),
	}
}

// Validate checks that every credential needed by the selected providers is set.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}

	switch c.OCREngine {
	case "azure":
		if c.Azure.Endpoint == "" {
			errs = append(errs, errors.New("AI_SERVICE_ENDPOINT is required for OCR_ENGINE=azure"))
		}
		if c.Azure.Key == "" {
			errs = append(errs, errors.New("AI_SERVICE_KEY is required for OCR_ENGINE=azure"))
		}
	case "yandex":
		if !c.Yandex.Enabled() {
			errs = append(errs, errors.New("YC_OAUTH_TOKEN and YC_FOLDER_ID are required for OCR_ENGINE=yandex"))
		}
	case "tesseract":
	default:
		errs = append(errs, fmt.Errorf("unknown OCR_ENGINE %q; use azure, yandex or tesseract", c.OCREngine))
	}

	switch c.LLMProvider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for LLM_PROVIDER=gemini"))
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for LLM_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q; use gemini or openai", c.LLMProvider))
	}

	switch c.Session.Backend {
	case "memory", "redis", "sqlite":
	case "postgres":
		if c.Session.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for SESSION_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be > 0"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be > 0"))
	}
	return errors.Join(errs...)
}

func (y YandexConfig) Enabled() bool { return y.OAuthToken != "" && y.FolderID != "" }

func (a AzureConfig) Enabled() bool { return a.Endpoint != "" && a.Key != "" }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			// godotenv never overrides variables already set in the environment
			if err := godotenv.Load(p); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
