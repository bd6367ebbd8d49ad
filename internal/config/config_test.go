package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "playwright", cfg.Browser.Engine)
	assert.Equal(t, "zh-CN", cfg.Browser.Locale)
	assert.Equal(t, 3, cfg.Scraper.MaxTransitionAttempts)
	assert.Equal(t, 20, cfg.Translate.ChunkSize)
	assert.Equal(t, 3, cfg.Translate.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Translate.Timeout)
	assert.Equal(t, 1.20, cfg.Pricing.MarkupFactor)
	assert.Equal(t, 250.0, cfg.Pricing.RoundingStep)
	assert.Equal(t, 12000.0, cfg.Pricing.AirRatePerKg)
	assert.Equal(t, 182000.0, cfg.Pricing.SeaRatePerCbm)
	assert.Equal(t, 500.0, cfg.Pricing.SeaMinimumFee)
	assert.Equal(t, 5.0, cfg.Pricing.PaddingCm)
	assert.Equal(t, 1000.0, cfg.Pricing.DomesticFee)
	assert.Equal(t, 1.0, cfg.Pricing.SourceMultiplier)
	assert.Equal(t, "outbox", cfg.Embedding.Backend)
	assert.Equal(t, "stream:embedding_jobs", cfg.Embedding.Stream)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRICE_MARKUP_FACTOR", "1.5")
	t.Setenv("PRICE_SOURCE_MULTIPLIER", "190")
	t.Setenv("TRANSLATE_CHUNK_SIZE", "10")
	t.Setenv("BROWSER_ENGINE", "chromedp")
	t.Setenv("EMBEDDING_BACKEND", "stream")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.Pricing.MarkupFactor)
	assert.Equal(t, 190.0, cfg.Pricing.SourceMultiplier)
	assert.Equal(t, 10, cfg.Translate.ChunkSize)
	assert.Equal(t, "chromedp", cfg.Browser.Engine)
	assert.Equal(t, "stream", cfg.Embedding.Backend)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRANSLATE_CHUNK_SIZE", "many")

	_, err := Load()
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown engine", func(c *Config) { c.Browser.Engine = "selenium" }, "BROWSER_ENGINE"},
		{"inverted delays", func(c *Config) { c.Scraper.ItemDelayMin = time.Minute; c.Scraper.ItemDelayMax = time.Second }, "SCRAPER_ITEM_DELAY_MIN"},
		{"zero attempts", func(c *Config) { c.Translate.MaxAttempts = 0 }, "TRANSLATE_MAX_ATTEMPTS"},
		{"zero chunk", func(c *Config) { c.Translate.ChunkSize = 0 }, "TRANSLATE_CHUNK_SIZE"},
		{"zero step", func(c *Config) { c.Pricing.RoundingStep = 0 }, "PRICE_ROUNDING_STEP"},
		{"bad method", func(c *Config) { c.Pricing.ShippingMethod = "rail" }, "PRICE_SHIPPING_METHOD"},
		{"bad backend", func(c *Config) { c.Embedding.Backend = "kafka" }, "EMBEDDING_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
