package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Playwright launches Chromium through playwright-go. Each NewPage call gets
// its own browser context so sessions never share cookies.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

func NewPlaywright(opts *Options) (*Playwright, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Playwright{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  slog.Default().With("component", "browser", "engine", EnginePlaywright),
	}, nil
}

func (b *Playwright) NewPage(ctx context.Context, session Session) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session = mergeSession(b.opts, session)

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &session.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &session.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: session.ExtraHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	p := &playwrightPage{page: page, bctx: bctx, timeout: float64(b.opts.Timeout.Milliseconds())}
	page.OnFrameNavigated(func(f playwright.Frame) {
		if f.ParentFrame() != nil {
			return
		}
		p.mu.Lock()
		p.committed = f.URL()
		p.mu.Unlock()
	})

	return p, nil
}

func (b *Playwright) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

type playwrightPage struct {
	page    playwright.Page
	bctx    playwright.BrowserContext
	timeout float64

	mu        sync.Mutex
	committed string
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(p.timeout),
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := p.page.Evaluate(script)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return decodeResult(result, out)
}

func (p *playwrightPage) ClickAt(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Click(x, y)
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(p.timeout / 6),
	})
}

func (p *playwrightPage) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Keyboard().Press(key)
}

func (p *playwrightPage) Scroll(ctx context.Context, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Wheel(0, dy)
}

func (p *playwrightPage) GoBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *playwrightPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(cookies) == 0 {
		return nil
	}

	converted := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		converted = append(converted, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Secure:   playwright.Bool(c.Secure),
			HttpOnly: playwright.Bool(c.HTTPOnly),
		})
	}
	if err := p.bctx.AddCookies(converted); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) CommittedURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

func (p *playwrightPage) Close() error {
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return p.bctx.Close()
}
