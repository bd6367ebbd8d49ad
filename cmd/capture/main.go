// Command capture walks one item page and prints the raw capture as JSON,
// without translating or storing it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/storefront-importer/internal/browser"
	"github.com/maltedev/storefront-importer/internal/config"
	"github.com/maltedev/storefront-importer/internal/logging"
	"github.com/maltedev/storefront-importer/internal/scraper"
)

func main() {
	var (
		url      = flag.String("url", "", "item URL to capture")
		out      = flag.String("out", "", "write JSON here instead of stdout")
		headless = flag.Bool("headless", true, "run the browser without a window")
		engine   = flag.String("engine", "", "override BROWSER_ENGINE")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "Please provide a URL with -url")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Browser.Headless = *headless
	if *engine != "" {
		cfg.Browser.Engine = *engine
	}

	logger, closer := logging.Setup(cfg.Logging)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher, err := browser.Launch(browser.OptionsFromConfig(cfg.Browser))
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer launcher.Close()

	session, err := browser.SessionFromConfig(cfg.Browser)
	if err != nil {
		logger.Error("failed to load session", "error", err)
		os.Exit(1)
	}

	page, err := launcher.NewPage(ctx, session)
	if err != nil {
		logger.Error("failed to create page", "error", err)
		os.Exit(1)
	}
	defer page.Close()

	opts := scraper.DefaultOptions()
	opts.MaxTransitionAttempts = cfg.Scraper.MaxTransitionAttempts
	opts.PauseMin = cfg.Scraper.PauseMin
	opts.PauseMax = cfg.Scraper.PauseMax

	ctx, cancel := context.WithTimeout(ctx, cfg.Scraper.ItemTimeout)
	defer cancel()

	capture, err := scraper.NewItemScraper(opts).Capture(ctx, page, session, *url)
	if err != nil {
		logger.Error("capture failed", "url", *url, "error", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			logger.Error("failed to create output file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(capture); err != nil {
		logger.Error("failed to write capture", "error", err)
		os.Exit(1)
	}
	logger.Info("capture written", "skus", len(capture.SKUEntries), "degraded", capture.Degraded)
}
