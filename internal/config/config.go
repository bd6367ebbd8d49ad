package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Translate TranslateConfig
	Pricing   PricingConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type BrowserConfig struct {
	Engine         string        `env:"BROWSER_ENGINE" envDefault:"playwright"`
	Headless       bool          `env:"BROWSER_HEADLESS" envDefault:"true"`
	Timeout        time.Duration `env:"BROWSER_TIMEOUT" envDefault:"30s"`
	ViewportWidth  int           `env:"BROWSER_VIEWPORT_WIDTH" envDefault:"1920"`
	ViewportHeight int           `env:"BROWSER_VIEWPORT_HEIGHT" envDefault:"1080"`
	UserAgent      string        `env:"BROWSER_USER_AGENT"`
	AcceptLanguage string        `env:"BROWSER_ACCEPT_LANGUAGE" envDefault:"zh-CN,zh;q=0.9,en;q=0.8"`
	TimezoneID     string        `env:"BROWSER_TIMEZONE" envDefault:"Asia/Shanghai"`
	Locale         string        `env:"BROWSER_LOCALE" envDefault:"zh-CN"`
	ProxyServer    string        `env:"BROWSER_PROXY"`
	// CookiesFile holds a JSON cookie export from an already signed-in
	// session.
	CookiesFile string `env:"BROWSER_COOKIES_FILE"`
}

type ScraperConfig struct {
	ItemDelayMin          time.Duration `env:"SCRAPER_ITEM_DELAY_MIN" envDefault:"5s"`
	ItemDelayMax          time.Duration `env:"SCRAPER_ITEM_DELAY_MAX" envDefault:"20s"`
	PauseMin              time.Duration `env:"SCRAPER_PAUSE_MIN" envDefault:"800ms"`
	PauseMax              time.Duration `env:"SCRAPER_PAUSE_MAX" envDefault:"2500ms"`
	MaxTransitionAttempts int           `env:"SCRAPER_MAX_TRANSITION_ATTEMPTS" envDefault:"3"`
	ItemTimeout           time.Duration `env:"SCRAPER_ITEM_TIMEOUT" envDefault:"8m"`
}

type TranslateConfig struct {
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	PrimaryModel      string        `env:"TRANSLATE_PRIMARY_MODEL" envDefault:"gemini-2.5-flash"`
	FallbackModel     string        `env:"TRANSLATE_FALLBACK_MODEL" envDefault:"gemini-2.0-flash"`
	TargetLanguage    string        `env:"TRANSLATE_TARGET_LANGUAGE" envDefault:"Korean"`
	Timeout           time.Duration `env:"TRANSLATE_TIMEOUT" envDefault:"60s"`
	MaxAttempts       int           `env:"TRANSLATE_MAX_ATTEMPTS" envDefault:"3"`
	BackoffStep       time.Duration `env:"TRANSLATE_BACKOFF_STEP" envDefault:"2s"`
	ChunkSize         int           `env:"TRANSLATE_CHUNK_SIZE" envDefault:"20"`
	RequestsPerMinute int           `env:"TRANSLATE_REQUESTS_PER_MINUTE" envDefault:"30"`
}

type PricingConfig struct {
	MarkupFactor     float64 `env:"PRICE_MARKUP_FACTOR" envDefault:"1.20"`
	RoundingStep     float64 `env:"PRICE_ROUNDING_STEP" envDefault:"250"`
	AirRatePerKg     float64 `env:"PRICE_AIR_RATE_PER_KG" envDefault:"12000"`
	SeaRatePerCbm    float64 `env:"PRICE_SEA_RATE_PER_CBM" envDefault:"182000"`
	SeaMinimumFee    float64 `env:"PRICE_SEA_MINIMUM_FEE" envDefault:"500"`
	PaddingCm        float64 `env:"PRICE_PADDING_CM" envDefault:"5"`
	DomesticFee      float64 `env:"PRICE_DOMESTIC_FEE" envDefault:"1000"`
	SourceMultiplier float64 `env:"PRICE_SOURCE_MULTIPLIER" envDefault:"1"`
	// ShippingMethod forces AIR or SEA; empty selects by weight.
	ShippingMethod string `env:"PRICE_SHIPPING_METHOD"`
}

type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" envDefault:"localhost"`
	Port        int           `env:"DB_PORT" envDefault:"5432"`
	User        string        `env:"DB_USER" envDefault:"postgres"`
	Password    string        `env:"DB_PASSWORD"`
	Name        string        `env:"DB_NAME" envDefault:"storefront_importer"`
	SSLMode     string        `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnLife time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdle time.Duration `env:"DB_MAX_CONN_IDLE" envDefault:"30m"`
	Timeout     time.Duration `env:"DB_TIMEOUT" envDefault:"15s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type EmbeddingConfig struct {
	// Backend is "outbox" or "stream".
	Backend        string        `env:"EMBEDDING_BACKEND" envDefault:"outbox"`
	Stream         string        `env:"EMBEDDING_STREAM" envDefault:"stream:embedding_jobs"`
	Timeout        time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"10s"`
	RelayInterval  time.Duration `env:"OUTBOX_RELAY_INTERVAL" envDefault:"5s"`
	RelayBatchSize int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
}

type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"json"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("BROWSER_ENGINE must be playwright or chromedp, got %q", c.Browser.Engine)
	}

	if c.Scraper.ItemDelayMin > c.Scraper.ItemDelayMax {
		return fmt.Errorf("SCRAPER_ITEM_DELAY_MIN cannot be greater than SCRAPER_ITEM_DELAY_MAX")
	}
	if c.Scraper.PauseMin > c.Scraper.PauseMax {
		return fmt.Errorf("SCRAPER_PAUSE_MIN cannot be greater than SCRAPER_PAUSE_MAX")
	}
	if c.Scraper.MaxTransitionAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_TRANSITION_ATTEMPTS must be at least 1")
	}

	if c.Translate.MaxAttempts < 1 {
		return fmt.Errorf("TRANSLATE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Translate.ChunkSize < 1 {
		return fmt.Errorf("TRANSLATE_CHUNK_SIZE must be at least 1")
	}

	if c.Pricing.MarkupFactor <= 0 {
		return fmt.Errorf("PRICE_MARKUP_FACTOR must be positive")
	}
	if c.Pricing.RoundingStep <= 0 {
		return fmt.Errorf("PRICE_ROUNDING_STEP must be positive")
	}
	if c.Pricing.SourceMultiplier <= 0 {
		return fmt.Errorf("PRICE_SOURCE_MULTIPLIER must be positive")
	}
	switch strings.ToUpper(c.Pricing.ShippingMethod) {
	case "", "AIR", "SEA":
	default:
		return fmt.Errorf("PRICE_SHIPPING_METHOD must be AIR, SEA or empty")
	}

	switch c.Embedding.Backend {
	case "outbox", "stream":
	default:
		return fmt.Errorf("EMBEDDING_BACKEND must be outbox or stream, got %q", c.Embedding.Backend)
	}

	return nil
}
