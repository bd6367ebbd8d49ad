package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/storefront-importer/internal/api"
	"github.com/maltedev/storefront-importer/internal/browser"
	"github.com/maltedev/storefront-importer/internal/config"
	"github.com/maltedev/storefront-importer/internal/database"
	"github.com/maltedev/storefront-importer/internal/events"
	"github.com/maltedev/storefront-importer/internal/logging"
	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/persistence"
	"github.com/maltedev/storefront-importer/internal/pipeline"
	"github.com/maltedev/storefront-importer/internal/pricing"
	"github.com/maltedev/storefront-importer/internal/queue"
	"github.com/maltedev/storefront-importer/internal/ratelimit"
	"github.com/maltedev/storefront-importer/internal/scraper"
	"github.com/maltedev/storefront-importer/internal/translate"
	"github.com/maltedev/storefront-importer/internal/variant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.Setup(cfg.Logging)
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("importer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Name,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Embedding trigger: outbox rows drained by the relay, or direct XADD.
	var (
		trigger persistence.EmbeddingTrigger
		backlog api.Backlog
	)
	switch cfg.Embedding.Backend {
	case "stream":
		trigger = events.NewStreamTrigger(redisClient, cfg.Embedding.Stream, logger)
	default:
		trigger = events.NewOutboxTrigger(db, logger)
		relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
			PollInterval: cfg.Embedding.RelayInterval,
			BatchSize:    cfg.Embedding.RelayBatchSize,
		})
		backlog = relay
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	// Browser setup
	launcher, err := browser.Launch(browser.OptionsFromConfig(cfg.Browser))
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer launcher.Close()

	session, err := browser.SessionFromConfig(cfg.Browser)
	if err != nil {
		return err
	}

	model, err := translate.NewGeminiModel(ctx, cfg.Translate.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create translation model: %w", err)
	}
	defer model.Close()

	delayer := ratelimit.NewHumanizer()
	client := translate.NewClient(model, translate.ClientConfig{
		PrimaryModel:      cfg.Translate.PrimaryModel,
		FallbackModel:     cfg.Translate.FallbackModel,
		Timeout:           cfg.Translate.Timeout,
		MaxAttempts:       cfg.Translate.MaxAttempts,
		BackoffStep:       cfg.Translate.BackoffStep,
		RequestsPerMinute: cfg.Translate.RequestsPerMinute,
	}, delayer)
	client.SetObserver(pipeline.TranslateObserver{})

	enricherCfg := translate.DefaultEnricherConfig()
	enricherCfg.TargetLanguage = cfg.Translate.TargetLanguage
	enricherCfg.ChunkSize = cfg.Translate.ChunkSize

	scraperOpts := scraper.DefaultOptions()
	scraperOpts.Delayer = delayer
	scraperOpts.MaxTransitionAttempts = cfg.Scraper.MaxTransitionAttempts
	scraperOpts.PauseMin = cfg.Scraper.PauseMin
	scraperOpts.PauseMax = cfg.Scraper.PauseMax

	engine := pricing.NewEngine(pricing.Rates{
		MarkupFactor:  cfg.Pricing.MarkupFactor,
		RoundingStep:  cfg.Pricing.RoundingStep,
		AirRatePerKg:  cfg.Pricing.AirRatePerKg,
		SeaRatePerCbm: cfg.Pricing.SeaRatePerCbm,
		SeaMinimumFee: cfg.Pricing.SeaMinimumFee,
		PaddingCm:     cfg.Pricing.PaddingCm,
	})

	gateway := persistence.NewGateway(db, trigger, persistence.Config{
		WriteTimeout:   cfg.Database.Timeout,
		TriggerTimeout: cfg.Embedding.Timeout,
	})
	defer gateway.Wait()

	runner := pipeline.NewRunner(pipeline.Deps{
		Launcher:   launcher,
		Session:    session,
		Capturer:   scraper.NewItemScraper(scraperOpts),
		Enricher:   translate.NewEnricher(client, enricherCfg),
		Engine:     engine,
		Reconciler: variant.NewReconciler(engine),
		Saver:      gateway,
		Limiter:    ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.ItemDelayMin, cfg.Scraper.ItemDelayMax),
	}, pipeline.Config{
		DomesticFee:      cfg.Pricing.DomesticFee,
		SourceMultiplier: cfg.Pricing.SourceMultiplier,
		ShippingMethod:   models.ShippingMethod(strings.ToUpper(cfg.Pricing.ShippingMethod)),
		ItemTimeout:      cfg.Scraper.ItemTimeout,
	})

	tasks := queue.NewInMemoryQueue()
	worker := queue.NewWorker(tasks, runner, logger)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("import worker stopped with error", "error", err)
		}
	}()
	defer tasks.Close()

	handlers := api.NewHandlers(runner, db, worker, backlog, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		ImportTimeout: cfg.Scraper.ItemTimeout + cfg.Translate.Timeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * 2,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"browser", cfg.Browser.Engine,
		"embedding_backend", cfg.Embedding.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
