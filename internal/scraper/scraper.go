// Package scraper sequences the page driver and the extractor into one
// capture per item.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/maltedev/storefront-importer/internal/browser"
	"github.com/maltedev/storefront-importer/internal/extract"
	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/ratelimit"
)

var (
	ErrNavigation = errors.New("item page could not be loaded")
	ErrEmptyPage  = errors.New("item page has no title")
)

// Capturer produces a RawProductCapture from a live tab.
type Capturer interface {
	Capture(ctx context.Context, page browser.Page, session browser.Session, url string) (*models.RawProductCapture, error)
}

type Options struct {
	Delayer               ratelimit.Delayer
	ImageFilter           extract.ImageFilter
	Selectors             browser.Selectors
	MaxTransitionAttempts int
	PauseMin              time.Duration
	PauseMax              time.Duration
}

func DefaultOptions() Options {
	return Options{
		Delayer:               ratelimit.NewHumanizer(),
		ImageFilter:           extract.DefaultImageFilter(),
		Selectors:             browser.DefaultSelectors(),
		MaxTransitionAttempts: 3,
		PauseMin:              800 * time.Millisecond,
		PauseMax:              2500 * time.Millisecond,
	}
}

type ItemScraper struct {
	opts   Options
	logger *slog.Logger
}

func NewItemScraper(opts Options) *ItemScraper {
	if opts.Delayer == nil {
		opts.Delayer = ratelimit.NewHumanizer()
	}
	return &ItemScraper{
		opts:   opts,
		logger: slog.Default().With("component", "item_scraper"),
	}
}

// Capture walks the page through every state and reads each panel. Only a
// failed initial load or a cancelled context returns an error; overlays that
// never open leave their fields empty and are listed in Degraded.
func (s *ItemScraper) Capture(ctx context.Context, page browser.Page, session browser.Session, url string) (*models.RawProductCapture, error) {
	s.logger.Info("capturing item", "url", url)

	driver := browser.NewDriver(page, session, s.opts.Delayer,
		browser.WithSelectors(s.opts.Selectors),
		browser.WithMaxTransitionAttempts(s.opts.MaxTransitionAttempts),
		browser.WithPause(s.opts.PauseMin, s.opts.PauseMax),
	)
	ext := extract.New(page, s.opts.ImageFilter)

	if err := driver.Open(ctx, url); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	basic, err := ext.ExtractBasic(ctx)
	if err != nil {
		return nil, err
	}
	if basic.Title == "" {
		return nil, ErrEmptyPage
	}

	capture := &models.RawProductCapture{
		SourceURL:       url,
		OfferID:         basic.OfferID,
		Title:           basic.Title,
		PriceText:       basic.PriceText,
		ImageURLs:       basic.ImageURLs,
		DescriptionText: basic.DescriptionText,
		Attributes:      basic.Attributes,
	}

	if err := driver.OpenOptions(ctx); err != nil {
		return nil, err
	}
	opts, err := ext.ExtractOptions(ctx)
	if err != nil {
		return nil, err
	}
	capture.OptionAxes = opts.Axes
	capture.SKUEntries = opts.SKUs

	if err := driver.CloseOptions(ctx); err != nil {
		return nil, err
	}
	if err := driver.OpenReviews(ctx); err != nil {
		return nil, err
	}
	if capture.Reviews, err = ext.ExtractReviews(ctx); err != nil {
		return nil, err
	}
	if err := driver.CloseReviews(ctx); err != nil {
		return nil, err
	}

	if err := driver.RevealDescription(ctx); err != nil {
		return nil, err
	}
	if capture.DescriptionImageURLs, err = ext.ExtractDescriptionImages(ctx); err != nil {
		return nil, err
	}
	if text := ext.ExtractDescriptionText(ctx); len(text) > len(capture.DescriptionText) {
		capture.DescriptionText = text
	}
	driver.Finish()

	capture.WeightKg, capture.Dimensions = extract.Measurements(measurementTexts(capture)...)
	for _, st := range driver.Degraded() {
		capture.Degraded = append(capture.Degraded, string(st))
	}
	capture.CapturedAt = time.Now().UTC()

	s.logger.Info("item captured",
		"url", url,
		"images", len(capture.ImageURLs),
		"skus", len(capture.SKUEntries),
		"reviews", len(capture.Reviews),
		"description_images", len(capture.DescriptionImageURLs),
		"degraded", capture.Degraded,
	)
	return capture, nil
}

// measurementTexts orders sources from most to least structured.
func measurementTexts(c *models.RawProductCapture) []string {
	var texts []string
	for _, k := range slices.Sorted(maps.Keys(c.Attributes)) {
		v := c.Attributes[k]
		if strings.ContainsAny(k, "重尺寸包装") || strings.Contains(strings.ToLower(k), "weight") || strings.Contains(strings.ToLower(k), "size") {
			texts = append(texts, k+": "+v)
		}
	}
	texts = append(texts, c.DescriptionText, c.Title)
	return texts
}
