package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	DatabaseURL string
	ListenAddr  string

	// MetrikaCounterID and MetrikaToken configure the measurement-protocol
	// collector. If either is empty the dispatcher is unconfigured and
	// every send becomes a logged no-op.
	MetrikaCounterID string
	MetrikaToken     string

	// MetrikaCollectURL is the collector endpoint. Overridable for staging.
	MetrikaCollectURL string

	// PostbackURL is the partner postback endpoint. Empty disables postbacks.
	PostbackURL string

	// BotUsername is used to build the t.me page URLs attached to
	// pageviews and purchase events.
	BotUsername string

	// AdminToken authenticates the /admin endpoints. If empty, the admin
	// surface is disabled.
	AdminToken string

	// CleanupDays is the retention horizon for tracking records that never
	// converted. Converted users are kept indefinitely.
	CleanupDays int

	// InterEventDelay is the pause between a session-reopening pageview and
	// the dependent purchase event. The collector stitches nearby hits into
	// visits asynchronously, so this must stay >= 500ms in production.
	InterEventDelay time.Duration
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:       os.Getenv("APP_DATABASE_URL"),
		ListenAddr:        getenv("APP_LISTEN_ADDR", ":8080"),
		MetrikaCounterID:  os.Getenv("APP_METRIKA_COUNTER_ID"),
		MetrikaToken:      os.Getenv("APP_METRIKA_TOKEN"),
		MetrikaCollectURL: getenv("APP_METRIKA_COLLECT_URL", "https://mc.yandex.ru/collect"),
		PostbackURL:       os.Getenv("APP_POSTBACK_URL"),
		BotUsername:       getenv("APP_BOT_USERNAME", "your_bot"),
		AdminToken:        os.Getenv("APP_ADMIN_TOKEN"),
		CleanupDays:       30,
		InterEventDelay:   time.Second,
	}

	if v := os.Getenv("APP_CLEANUP_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.CleanupDays = days
		}
	}

	if v := os.Getenv("APP_INTER_EVENT_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 500 {
			cfg.InterEventDelay = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
