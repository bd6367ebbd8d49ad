package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/maltedev/storefront-importer/internal/ratelimit"
)

type State string

const (
	StateNew                State = "NEW"
	StateLoaded             State = "LOADED"
	StateOptionsOpen        State = "OPTIONS_OPEN"
	StateOptionsClosed      State = "OPTIONS_CLOSED"
	StateReviewsOpen        State = "REVIEWS_OPEN"
	StateReviewsClosed      State = "REVIEWS_CLOSED"
	StateDescriptionVisible State = "DESCRIPTION_VISIBLE"
	StateDone               State = "DONE"
)

// Selectors describes where the storefront keeps its overlays. Triggers are
// tried in order; the first that clicks wins.
type Selectors struct {
	OptionsTrigger    []string
	OptionsMarker     string
	OptionsClose      []string
	ReviewsTrigger    []string
	ReviewsMarker     string
	ReviewsClose      []string
	DescriptionMarker string
	DetailURL         *regexp.Regexp
}

func DefaultSelectors() Selectors {
	return Selectors{
		OptionsTrigger: []string{
			".sku-wrapper .sku-selector",
			"[class*='sku-filter-button']",
			".od-pc-offer-sku-selector",
		},
		OptionsMarker: ".sku-dialog, [class*='sku-popup'], .od-sku-selection-dialog",
		OptionsClose: []string{
			".sku-dialog .close",
			"[class*='sku-popup'] [class*='close']",
		},
		ReviewsTrigger: []string{
			"[class*='evaluate-entry']",
			".od-pc-offer-tab-item[data-tab='evaluate']",
			"a[href*='evaluate']",
		},
		ReviewsMarker: "[class*='evaluate-list'], .od-pc-evaluate-dialog",
		ReviewsClose: []string{
			".od-pc-evaluate-dialog .close",
			"[class*='evaluate'] [class*='close']",
		},
		DescriptionMarker: "#detailContentContainer, .od-pc-detail-description, [class*='desc-lazyload-container']",
		DetailURL:         regexp.MustCompile(`/offer/\d+\.html|[?&](id|offerId)=\d+`),
	}
}

// Driver walks one tab through the capture states. Verification failures
// degrade the current state and move on; only the initial navigation can
// abort a capture.
type Driver struct {
	page     Page
	session  Session
	delayer  ratelimit.Delayer
	sel      Selectors
	logger   *slog.Logger
	attempts int
	scrolls  int
	pauseMin time.Duration
	pauseMax time.Duration
	scrollBy float64

	state      State
	degraded   []State
	leftDetail bool
}

type DriverOption func(*Driver)

func WithSelectors(s Selectors) DriverOption {
	return func(d *Driver) { d.sel = s }
}

// WithMaxTransitionAttempts sets how many act-wait-verify rounds a
// transition gets before it is marked degraded.
func WithMaxTransitionAttempts(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.attempts = n
		}
	}
}

func WithPause(min, max time.Duration) DriverOption {
	return func(d *Driver) {
		d.pauseMin = min
		d.pauseMax = max
	}
}

func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

func NewDriver(page Page, session Session, delayer ratelimit.Delayer, opts ...DriverOption) *Driver {
	if delayer == nil {
		delayer = ratelimit.NewHumanizer()
	}
	d := &Driver{
		page:     page,
		session:  session,
		delayer:  delayer,
		sel:      DefaultSelectors(),
		logger:   slog.Default().With("component", "page_driver"),
		attempts: 3,
		scrolls:  12,
		pauseMin: 800 * time.Millisecond,
		pauseMax: 2500 * time.Millisecond,
		scrollBy: 900,
		state:    StateNew,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Page() Page { return d.page }

func (d *Driver) State() State { return d.state }

// Degraded lists the states whose verification never succeeded.
func (d *Driver) Degraded() []State {
	out := make([]State, len(d.degraded))
	copy(out, d.degraded)
	return out
}

// Open installs the session cookies and loads the item page.
func (d *Driver) Open(ctx context.Context, url string) error {
	if err := d.page.SetCookies(ctx, d.session.Cookies); err != nil {
		d.logger.Warn("failed to install session cookies", "error", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = d.page.Navigate(ctx, url); lastErr == nil {
			break
		}
		d.logger.Warn("navigation failed", "url", url, "attempt", attempt, "error", lastErr)
		if err := d.pause(ctx); err != nil {
			return err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load %s after %d attempts: %w", url, d.attempts, lastErr)
	}

	if err := d.pause(ctx); err != nil {
		return err
	}
	d.state = StateLoaded
	return nil
}

func (d *Driver) OpenOptions(ctx context.Context) error {
	return d.transition(ctx, StateOptionsOpen,
		func(ctx context.Context) error { return d.clickFirst(ctx, d.sel.OptionsTrigger) },
		func(ctx context.Context) (bool, error) { return d.visible(ctx, d.sel.OptionsMarker) },
	)
}

func (d *Driver) CloseOptions(ctx context.Context) error {
	return d.transition(ctx, StateOptionsClosed,
		func(ctx context.Context) error {
			if err := d.page.PressKey(ctx, "Escape"); err == nil {
				return nil
			}
			return d.clickFirst(ctx, d.sel.OptionsClose)
		},
		func(ctx context.Context) (bool, error) {
			open, err := d.visible(ctx, d.sel.OptionsMarker)
			return !open, err
		},
	)
}

// OpenReviews succeeds when the review marker shows up, either as an overlay
// or on a page the tab navigated to.
func (d *Driver) OpenReviews(ctx context.Context) error {
	err := d.transition(ctx, StateReviewsOpen,
		func(ctx context.Context) error { return d.clickFirst(ctx, d.sel.ReviewsTrigger) },
		func(ctx context.Context) (bool, error) { return d.visible(ctx, d.sel.ReviewsMarker) },
	)
	if err != nil {
		return err
	}

	committed := d.page.CommittedURL()
	d.leftDetail = committed != "" && !d.IsDetailURL(committed)
	if d.leftDetail {
		d.logger.Debug("reviews opened on a separate page", "url", committed)
	}
	return nil
}

// CloseReviews goes back when opening reviews navigated away from the item,
// and dismisses the overlay otherwise.
func (d *Driver) CloseReviews(ctx context.Context) error {
	return d.transition(ctx, StateReviewsClosed,
		func(ctx context.Context) error {
			if d.leftDetail || !d.IsDetailURL(d.page.URL()) {
				return d.page.GoBack(ctx)
			}
			if err := d.page.PressKey(ctx, "Escape"); err == nil {
				return nil
			}
			return d.clickFirst(ctx, d.sel.ReviewsClose)
		},
		func(ctx context.Context) (bool, error) {
			if !d.IsDetailURL(d.page.URL()) {
				return false, nil
			}
			open, err := d.visible(ctx, d.sel.ReviewsMarker)
			if err == nil && !open {
				d.leftDetail = false
			}
			return !open, err
		},
	)
}

// RevealDescription scrolls until the description container is in view.
func (d *Driver) RevealDescription(ctx context.Context) error {
	attempts := d.attempts
	d.attempts = d.scrolls
	defer func() { d.attempts = attempts }()

	return d.transition(ctx, StateDescriptionVisible,
		func(ctx context.Context) error { return d.page.Scroll(ctx, d.scrollBy) },
		func(ctx context.Context) (bool, error) { return d.inViewport(ctx, d.sel.DescriptionMarker) },
	)
}

func (d *Driver) Finish() {
	d.state = StateDone
}

// IsDetailURL reports whether url looks like an item detail page.
func (d *Driver) IsDetailURL(url string) bool {
	if d.sel.DetailURL == nil {
		return true
	}
	return d.sel.DetailURL.MatchString(url)
}

func (d *Driver) transition(ctx context.Context, to State, act func(context.Context) error, verify func(context.Context) (bool, error)) error {
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := act(ctx); err != nil {
			d.logger.Debug("transition action failed", "to", to, "attempt", attempt, "error", err)
		}

		if err := d.pause(ctx); err != nil {
			return err
		}

		ok, err := verify(ctx)
		if err != nil {
			d.logger.Debug("transition verification failed", "to", to, "attempt", attempt, "error", err)
		}
		if ok {
			d.state = to
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	d.logger.Warn("transition degraded", "to", to, "attempts", d.attempts)
	d.degraded = append(d.degraded, to)
	d.state = to
	return nil
}

func (d *Driver) pause(ctx context.Context) error {
	return d.delayer.Pause(ctx, d.pauseMin, d.pauseMax)
}

// clickFirst tries each selector as a DOM click and falls back to a pointer
// click on the centre of the first matching element.
func (d *Driver) clickFirst(ctx context.Context, selectors []string) error {
	var lastErr error
	for _, sel := range selectors {
		if lastErr = d.page.Click(ctx, sel); lastErr == nil {
			return nil
		}
	}

	for _, sel := range selectors {
		var box struct {
			Found bool    `json:"found"`
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
		}
		if err := d.page.Evaluate(ctx, boundingBoxScript(sel), &box); err != nil {
			lastErr = err
			continue
		}
		if box.Found {
			return d.page.ClickAt(ctx, box.X, box.Y)
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no selector matched")
	}
	return lastErr
}

func (d *Driver) visible(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := d.page.Evaluate(ctx, visibleScript(selector, false), &ok)
	return ok, err
}

func (d *Driver) inViewport(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := d.page.Evaluate(ctx, visibleScript(selector, true), &ok)
	return ok, err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func boundingBoxScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return {found: false, x: 0, y: 0};
  el.scrollIntoView({block: "center"});
  const r = el.getBoundingClientRect();
  if (r.width === 0 || r.height === 0) return {found: false, x: 0, y: 0};
  return {found: true, x: r.left + r.width / 2, y: r.top + r.height / 2};
})()`, jsString(selector))
}

func visibleScript(selector string, viewport bool) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const r = el.getBoundingClientRect();
  if (r.width === 0 || r.height === 0) return false;
  if (!%t) return true;
  return r.top < window.innerHeight && r.bottom > 0;
})()`, jsString(selector), viewport)
}
