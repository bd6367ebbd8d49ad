// Package pipeline runs one storefront item through capture, enrichment,
// pricing, variant reconciliation and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maltedev/storefront-importer/internal/browser"
	"github.com/maltedev/storefront-importer/internal/extract"
	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/persistence"
	"github.com/maltedev/storefront-importer/internal/pricing"
	"github.com/maltedev/storefront-importer/internal/ratelimit"
	"github.com/maltedev/storefront-importer/internal/scraper"
	"github.com/maltedev/storefront-importer/internal/variant"
)

// ErrSkipped wraps every item-level failure reported in Result.Err.
var ErrSkipped = errors.New("item skipped")

type Outcome string

const (
	OutcomePersisted Outcome = "persisted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// Stage names the step an item was skipped at.
type Stage string

const (
	StageBrowser   Stage = "browser"
	StageCapture   Stage = "capture"
	StageEnrich    Stage = "enrich"
	StagePrice     Stage = "price"
	StageReconcile Stage = "reconcile"
	StagePersist   Stage = "persist"
)

type Result struct {
	URL       string        `json:"url"`
	Outcome   Outcome       `json:"outcome"`
	ProductID uuid.UUID     `json:"product_id,omitempty"`
	Stage     Stage         `json:"stage,omitempty"`
	Err       error         `json:"-"`
	Degraded  []string      `json:"degraded,omitempty"`
	Variants  int           `json:"variants"`
	Duration  time.Duration `json:"duration"`
}

// Reason is the skip cause for display, empty unless skipped.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type Enricher interface {
	Enrich(ctx context.Context, raw *models.RawProductCapture) (*models.EnrichedProduct, error)
}

type Saver interface {
	Save(ctx context.Context, p *models.PersistedProduct) (uuid.UUID, error)
}

// Limiter spaces consecutive items.
type Limiter interface {
	Wait(ctx context.Context) error
}

type feedbackLimiter interface {
	RecordSuccess()
	RecordError()
}

type Config struct {
	DomesticFee      float64
	SourceMultiplier float64
	// ShippingMethod forces AIR or SEA; empty selects by weight.
	ShippingMethod models.ShippingMethod
	ItemTimeout    time.Duration
}

type Runner struct {
	launcher   browser.Launcher
	session    browser.Session
	capturer   scraper.Capturer
	enricher   Enricher
	engine     *pricing.Engine
	reconciler *variant.Reconciler
	saver      Saver
	limiter    Limiter
	cfg        Config
	logger     *slog.Logger

	mu sync.Mutex
}

type Deps struct {
	Launcher   browser.Launcher
	Session    browser.Session
	Capturer   scraper.Capturer
	Enricher   Enricher
	Engine     *pricing.Engine
	Reconciler *variant.Reconciler
	Saver      Saver
	// Limiter defaults to an adaptive limiter with no spacing.
	Limiter Limiter
}

func NewRunner(deps Deps, cfg Config) *Runner {
	if cfg.SourceMultiplier <= 0 {
		cfg.SourceMultiplier = 1
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewAdaptiveRateLimiter(0, 0)
	}
	if deps.Reconciler == nil {
		deps.Reconciler = variant.NewReconciler(deps.Engine)
	}
	return &Runner{
		launcher:   deps.Launcher,
		session:    deps.Session,
		capturer:   deps.Capturer,
		enricher:   deps.Enricher,
		engine:     deps.Engine,
		reconciler: deps.Reconciler,
		saver:      deps.Saver,
		limiter:    deps.Limiter,
		cfg:        cfg,
		logger:     slog.Default().With("component", "pipeline"),
	}
}

// Process imports one item. Failures of the item itself are reported in
// the Result; the error is non-nil only when ctx ends.
func (r *Runner) Process(ctx context.Context, url string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return Result{URL: url}, err
	}

	start := time.Now()
	res := r.process(ctx, url)
	res.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	r.record(res)
	return res, nil
}

func (r *Runner) process(ctx context.Context, url string) Result {
	res := Result{URL: url}

	itemCtx := ctx
	if r.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, r.cfg.ItemTimeout)
		defer cancel()
	}

	raw, err := r.capture(itemCtx, url)
	if err != nil {
		return skip(res, StageCapture, err)
	}
	res.Degraded = raw.Degraded

	stop := timeStage(StageEnrich)
	enriched, err := r.enricher.Enrich(itemCtx, raw)
	stop()
	if err != nil {
		return skip(res, StageEnrich, err)
	}

	in := r.priceInput(raw)
	quote := r.engine.Quote(in)
	if !quote.FinalPrice.IsPositive() {
		return skip(res, StagePrice, fmt.Errorf("no usable price in %q", raw.PriceText))
	}

	variants := r.reconciler.Reconcile(variant.Input{
		Entries:          raw.SKUEntries,
		Axes:             raw.OptionAxes,
		Labels:           enriched,
		Quote:            in,
		SourceMultiplier: decimal.NewFromFloat(r.cfg.SourceMultiplier),
		BaseFinal:        quote.FinalPrice,
	})
	VariantsDropped.Add(float64(variants.Dropped))
	if len(raw.SKUEntries) > 0 && len(variants.Groups) == 0 {
		return skip(res, StageReconcile, errors.New("every SKU was dropped"))
	}
	res.Variants = len(variants.Variants())

	record := persistence.NewRecord(raw, enriched, quote, variants)

	stop = timeStage(StagePersist)
	id, err := r.saver.Save(itemCtx, record)
	stop()
	switch {
	case errors.Is(err, persistence.ErrDuplicate):
		res.Outcome = OutcomeDuplicate
		res.ProductID = id
		return res
	case err != nil:
		return skip(res, StagePersist, err)
	}

	res.Outcome = OutcomePersisted
	res.ProductID = id
	return res
}

func (r *Runner) capture(ctx context.Context, url string) (*models.RawProductCapture, error) {
	defer timeStage(StageCapture)()

	page, err := r.launcher.NewPage(ctx, r.session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageBrowser, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Warn("failed to close page", "error", err)
		}
	}()

	return r.capturer.Capture(ctx, page, r.session, url)
}

// priceInput converts the headline price, or the cheapest SKU price when
// the page shows none, into the engine's currency.
func (r *Runner) priceInput(raw *models.RawProductCapture) pricing.Input {
	base, ok := extract.ParseAmount(raw.PriceText)
	if !ok || !base.IsPositive() {
		base = lowestSKUPrice(raw.SKUEntries)
	}
	return pricing.Input{
		BasePrice:   base.Mul(decimal.NewFromFloat(r.cfg.SourceMultiplier)),
		DomesticFee: decimal.NewFromFloat(r.cfg.DomesticFee),
		WeightKg:    raw.WeightKg,
		Dimensions:  raw.Dimensions,
		Method:      r.cfg.ShippingMethod,
	}
}

func (r *Runner) record(res Result) {
	ItemsProcessed.WithLabelValues(string(res.Outcome), string(res.Stage)).Inc()
	for _, st := range res.Degraded {
		DegradedStates.WithLabelValues(st).Inc()
	}

	if fl, ok := r.limiter.(feedbackLimiter); ok {
		if res.Outcome == OutcomeSkipped {
			fl.RecordError()
		} else {
			fl.RecordSuccess()
		}
	}

	attrs := []any{
		"url", res.URL,
		"outcome", res.Outcome,
		"duration", res.Duration,
	}
	switch res.Outcome {
	case OutcomeSkipped:
		r.logger.Warn("item skipped", append(attrs, "stage", res.Stage, "error", res.Err)...)
	default:
		r.logger.Info("item finished", append(attrs, "product_id", res.ProductID, "variants", res.Variants)...)
	}
}

func skip(res Result, stage Stage, err error) Result {
	res.Outcome = OutcomeSkipped
	res.Stage = stage
	res.Err = fmt.Errorf("%w: %s: %w", ErrSkipped, stage, err)
	return res
}

func lowestSKUPrice(entries []models.SKUEntry) decimal.Decimal {
	lowest := decimal.Zero
	for _, e := range entries {
		p, ok := extract.ParseAmount(e.PriceText)
		if !ok || !p.IsPositive() {
			continue
		}
		if lowest.IsZero() || p.LessThan(lowest) {
			lowest = p
		}
	}
	return lowest
}

func timeStage(stage Stage) func() {
	start := time.Now()
	return func() {
		StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}
