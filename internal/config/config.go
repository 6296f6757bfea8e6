package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Telegram
	TelegramToken  string
	TelegramAPIURL string
	TelegramRate   int
	// WebhookSecret はsetWebhookのsecret_tokenと同じ値。
	// Telegramは X-Telegram-Bot-Api-Secret-Token ヘッダーで送ってくる。
	WebhookSecret string

	// Management API
	APIToken string

	// Commands
	CommandGrammar     string
	EmptyContentPolicy string
	FeedbackSource     string
	CommandsFile       string

	// Outbound
	OutboundTimeout time.Duration

	// Index
	IndexURL   string
	IndexOrg   string
	IndexName  string
	IndexToken string

	// Podcast
	PodcastFeedURL string
	PodcastFeedTTL time.Duration

	// Rate Limit
	RateLimitAPI     int
	RateLimitWebhook int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// 空の本文に対する振る舞い
const (
	EmptyContentIgnore = "ignore"
	EmptyContentPrompt = "prompt"
)

// webhookSecretPattern はTelegramがsecret_tokenとして受け付ける文字種と長さ。
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// DefaultTelegramAPIURL はTelegram Bot APIのベースURL。
const DefaultTelegramAPIURL = "https://api.telegram.org"

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}

	cfg.APIToken = os.Getenv("API_TOKEN")
	if cfg.APIToken == "" {
		missing = append(missing, "API_TOKEN")
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CommandGrammar = getEnvString("COMMAND_GRAMMAR", "slash")
	cfg.EmptyContentPolicy = getEnvString("EMPTY_CONTENT_POLICY", EmptyContentPrompt)
	cfg.FeedbackSource = getEnvString("FEEDBACK_SOURCE", "Telegram")
	cfg.CommandsFile = getEnvString("COMMANDS_FILE", "")
	cfg.TelegramAPIURL = getEnvString("TELEGRAM_API_URL", DefaultTelegramAPIURL)
	cfg.TelegramRate = getEnvInt("TELEGRAM_RATE", 25)
	cfg.OutboundTimeout = getEnvDuration("OUTBOUND_TIMEOUT", 10*time.Second)
	cfg.IndexURL = getEnvString("INDEX_URL", "")
	cfg.IndexOrg = getEnvString("INDEX_ORG", "default")
	cfg.IndexName = getEnvString("INDEX_NAME", "feedback")
	cfg.IndexToken = getEnvString("INDEX_TOKEN", "")
	cfg.PodcastFeedURL = getEnvString("PODCAST_FEED_URL", "")
	cfg.PodcastFeedTTL = getEnvDuration("PODCAST_FEED_TTL", time.Hour)
	cfg.RateLimitAPI = getEnvInt("RATE_LIMIT_API", 120)
	cfg.RateLimitWebhook = getEnvInt("RATE_LIMIT_WEBHOOK", 600)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if !webhookSecretPattern.MatchString(cfg.WebhookSecret) {
		return nil, fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and -")
	}

	if cfg.EmptyContentPolicy != EmptyContentIgnore && cfg.EmptyContentPolicy != EmptyContentPrompt {
		return nil, fmt.Errorf("EMPTY_CONTENT_POLICY must be %q or %q, got %q",
			EmptyContentIgnore, EmptyContentPrompt, cfg.EmptyContentPolicy)
	}

	return cfg, nil
}

// IndexEnabled はインデックス公開先が設定されているかを返す。
func (c *Config) IndexEnabled() bool {
	return c.IndexURL != ""
}

// PodcastEnabled はエピソード名の解決が有効かを返す。
func (c *Config) PodcastEnabled() bool {
	return c.PodcastFeedURL != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
