package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported Gemini transports.
const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

// Config holds the configuration for the application.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"fortifit-backend"`
	Port        int    `envconfig:"PORT" default:"5000"`

	// Gemini. An empty API key is allowed at startup; plan requests fail
	// with a configuration error until it is set.
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel     string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-pro"`
	GeminiBaseURL   string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	GeminiTransport string        `envconfig:"GEMINI_TRANSPORT" default:"rest"`
	MaxRetries      int           `envconfig:"GEMINI_MAX_RETRIES" default:"1"`
	RetryBackoff    time.Duration `envconfig:"GEMINI_RETRY_BACKOFF" default:"600ms"`
	RequestTimeout  time.Duration `envconfig:"GEMINI_TIMEOUT" default:"0s"`

	// HTTP surface
	TimeZone   string  `envconfig:"TIME_ZONE" default:"Europe/Warsaw"`
	BodyLimit  string  `envconfig:"BODY_LIMIT" default:"1M"`
	RateLimit  float64 `envconfig:"PLAN_RATE_LIMIT" default:"0"`
	AuthSecret string  `envconfig:"AUTH_JWT_SECRET"`
	StripHTML  bool    `envconfig:"STRIP_HTML" default:"false"`

	// Telegram operator alerts (optional)
	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAlertChatID int64  `envconfig:"TELEGRAM_ALERT_CHAT_ID"`
	PromptBloatTokens   int    `envconfig:"PROMPT_BLOAT_TOKENS" default:"30000"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// NewFromEnv loads an optional .env file and builds a Config from the environment.
func NewFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail late, mid-request.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	switch c.GeminiTransport {
	case TransportREST, TransportSDK:
	default:
		return fmt.Errorf("unsupported GEMINI_TRANSPORT %q", c.GeminiTransport)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("GEMINI_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("GEMINI_RETRY_BACKOFF must not be negative, got %s", c.RetryBackoff)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TimeZone for the server-side date context.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// AlertsEnabled reports whether Telegram operator alerts are configured.
func (c *Config) AlertsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAlertChatID != 0
}
