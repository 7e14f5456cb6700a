package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_LISTEN_ADDR", "APP_METRIKA_COLLECT_URL",
		"APP_CLEANUP_DAYS", "APP_INTER_EVENT_DELAY_MS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "https://mc.yandex.ru/collect", cfg.MetrikaCollectURL)
	assert.Equal(t, 30, cfg.CleanupDays)
	assert.Equal(t, time.Second, cfg.InterEventDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", ":9999")
	t.Setenv("APP_CLEANUP_DAYS", "7")
	t.Setenv("APP_INTER_EVENT_DELAY_MS", "750")
	t.Setenv("APP_METRIKA_COUNTER_ID", "12345678")
	t.Setenv("APP_METRIKA_TOKEN", "tok")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 7, cfg.CleanupDays)
	assert.Equal(t, 750*time.Millisecond, cfg.InterEventDelay)
	assert.Equal(t, "12345678", cfg.MetrikaCounterID)
}

func TestLoadRejectsSubSecondFloorViolation(t *testing.T) {
	// Delays under the collector's stitching floor fall back to the default.
	t.Setenv("APP_INTER_EVENT_DELAY_MS", "100")
	cfg := Load()
	assert.Equal(t, time.Second, cfg.InterEventDelay)
}
