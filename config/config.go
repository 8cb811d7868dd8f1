package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// StockNote credentials
	SamcoUserID   string
	SamcoPassword string
	SamcoYOB      string

	// Broker transport
	SamcoBaseURL        string
	SamcoScripMasterURL string
	SamcoRateLimit      int // requests per second
	SamcoMaxAttempts    int
	SamcoHTTPTimeout    time.Duration

	// Infrastructure
	RedisAddr     string // empty disables the shared catalogue
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	BarsSource    string // sqlite or redis, backs /api/v1/bars
	MetricsAddr   string
	HTTPAddr      string

	// Orders
	PaperTrading     bool
	OrderJournalPath string // empty disables the journal

	LogLevel         string
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads an optional .env file and then the environment. It exits the
// process when a required variable is missing or malformed.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}
	cfg, err := load(os.Getenv)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

func load(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		SamcoUserID:   e.must("SAMCO_USER_ID"),
		SamcoPassword: e.must("SAMCO_PASSWORD"),
		SamcoYOB:      e.must("SAMCO_YOB"),

		SamcoBaseURL:        e.str("SAMCO_BASE_URL", "https://api.stocknote.com"),
		SamcoScripMasterURL: e.str("SAMCO_SCRIP_MASTER_URL", "https://developers.stocknote.com/doc/ScripMaster.csv"),
		SamcoRateLimit:      e.integer("SAMCO_RATE_LIMIT", 10),
		SamcoMaxAttempts:    e.integer("SAMCO_MAX_ATTEMPTS", 10),
		SamcoHTTPTimeout:    e.duration("SAMCO_HTTP_TIMEOUT", 15*time.Second),

		RedisAddr:     e.str("REDIS_ADDR", ""),
		RedisPassword: e.str("REDIS_PASSWORD", ""),
		RedisDB:       e.integer("REDIS_DB", 0),
		SQLitePath:    e.str("SQLITE_PATH", "data/bars.db"),
		BarsSource:    e.str("BARS_SOURCE", "sqlite"),
		MetricsAddr:   e.str("METRICS_ADDR", ":9090"),
		HTTPAddr:      e.str("HTTP_ADDR", ":8080"),

		PaperTrading:     e.boolean("PAPER_TRADING", true),
		OrderJournalPath: e.str("ORDER_JOURNAL_PATH", "data/orders.db"),

		LogLevel:         e.str("LOG_LEVEL", "info"),
		AlertWebhookURL:  e.str("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: e.str("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   e.str("TELEGRAM_CHAT_ID", ""),
	}
	if e.err != nil {
		return nil, e.err
	}
	if cfg.SamcoRateLimit <= 0 {
		return nil, fmt.Errorf("SAMCO_RATE_LIMIT must be positive, got %d", cfg.SamcoRateLimit)
	}
	switch cfg.BarsSource {
	case "sqlite":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("BARS_SOURCE=redis needs REDIS_ADDR")
		}
	default:
		return nil, fmt.Errorf("BARS_SOURCE must be sqlite or redis, got %q", cfg.BarsSource)
	}
	return cfg, nil
}

// env reads variables and keeps the first error.
type env struct {
	get func(string) string
	err error
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *env) must(key string) string {
	v := e.get(key)
	if v == "" {
		e.fail(fmt.Errorf("required env var %s not set", key))
	}
	return v
}

func (e *env) str(key, fallback string) string {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	return v
}

func (e *env) integer(key string, fallback int) int {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) boolean(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// duration accepts Go durations ("20s") or bare seconds ("20").
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
