package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Chromedp drives Chrome over the DevTools protocol. One allocator is shared
// by every tab; each NewPage opens a fresh browser context.
type Chromedp struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	opts        *Options
	logger      *slog.Logger
}

func NewChromedp(opts *Options) (*Chromedp, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &Chromedp{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		opts:        opts,
		logger:      slog.Default().With("component", "browser", "engine", EngineChromedp),
	}, nil
}

func (b *Chromedp) NewPage(ctx context.Context, session Session) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session = mergeSession(b.opts, session)

	tabCtx, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithNewBrowserContext())
	p := &chromedpPage{tabCtx: tabCtx, cancel: cancel, opts: b.opts}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*cdppage.EventFrameNavigated); ok && e.Frame.ParentID == "" {
			p.mu.Lock()
			p.committed = e.Frame.URL
			p.mu.Unlock()
		}
	})

	headers := make(network.Headers, len(session.ExtraHeaders))
	for k, v := range session.ExtraHeaders {
		headers[k] = v
	}

	err := p.run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		emulation.SetUserAgentOverride(session.UserAgent).WithAcceptLanguage(session.Locale),
		emulation.SetTimezoneOverride(b.opts.TimezoneID),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}

	return p, nil
}

func (b *Chromedp) Close() error {
	b.allocCancel()
	return nil
}

type chromedpPage struct {
	tabCtx context.Context
	cancel context.CancelFunc
	opts   *Options

	mu        sync.Mutex
	committed string
}

// run executes actions on the tab, bounded by both the caller's context and
// the configured per-action timeout.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string, out any) error {
	var raw []byte
	err := p.run(ctx, chromedp.Evaluate(script, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return decodeResult(jsonRaw(raw), out)
}

func (p *chromedpPage) ClickAt(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseClickXY(x, y))
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromedpPage) PressKey(ctx context.Context, key string) error {
	return p.run(ctx, chromedp.KeyEvent(keyName(key)))
}

func (p *chromedpPage) Scroll(ctx context.Context, dy float64) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %f)", dy), nil))
}

func (p *chromedpPage) GoBack(ctx context.Context) error {
	return p.run(ctx, chromedp.NavigateBack())
}

func (p *chromedpPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	if err := p.run(ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

func (p *chromedpPage) URL() string {
	var loc string
	if err := p.run(context.Background(), chromedp.Location(&loc)); err != nil {
		return p.CommittedURL()
	}
	return loc
}

func (p *chromedpPage) CommittedURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

// jsonRaw lets decodeResult pass already-encoded JSON through untouched.
type jsonRaw []byte

func (r jsonRaw) MarshalJSON() ([]byte, error) { return r, nil }

func keyName(key string) string {
	switch key {
	case "Escape":
		return kb.Escape
	case "Enter":
		return kb.Enter
	case "End":
		return kb.End
	case "PageDown":
		return kb.PageDown
	default:
		return key
	}
}
