package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Page is the browser capability the importer drives. Implementations wrap
// one tab of a real browser; tests use an in-memory fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression in the page and decodes its
	// JSON-serializable result into out. A nil out discards the result.
	Evaluate(ctx context.Context, script string, out any) error
	ClickAt(ctx context.Context, x, y float64) error
	Click(ctx context.Context, selector string) error
	PressKey(ctx context.Context, key string) error
	Scroll(ctx context.Context, dy float64) error
	GoBack(ctx context.Context) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	URL() string
	// CommittedURL is the last main-frame URL reported by the browser's
	// navigation events. It can differ from URL() while a navigation is
	// still in flight.
	CommittedURL() string
	Close() error
}

// Launcher opens tabs configured for one session.
type Launcher interface {
	NewPage(ctx context.Context, session Session) (Page, error)
	Close() error
}

type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
}

// Session carries the identity a tab presents to the storefront. It is
// created by the caller and passed in explicitly; nothing in this package
// keeps session state globally.
type Session struct {
	Cookies      []Cookie
	UserAgent    string
	Locale       string
	ExtraHeaders map[string]string
}

// LoadCookies parses a JSON array of cookies as exported by common browser
// extensions.
func LoadCookies(data []byte) ([]Cookie, error) {
	var raw []struct {
		Name     string `json:"name"`
		Value    string `json:"value"`
		Domain   string `json:"domain"`
		Path     string `json:"path"`
		Secure   bool   `json:"secure"`
		HTTPOnly bool   `json:"httpOnly"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		if c.Name == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

type Options struct {
	Engine         string
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Engine:         EnginePlaywright,
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		TimezoneID:     "Asia/Shanghai",
		Locale:         "zh-CN",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
		},
	}
}

const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"
)

// Launch starts the configured browser engine.
func Launch(opts *Options) (Launcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch opts.Engine {
	case "", EnginePlaywright:
		return NewPlaywright(opts)
	case EngineChromedp:
		return NewChromedp(opts)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

// mergeSession fills session gaps from the launcher defaults.
func mergeSession(opts *Options, s Session) Session {
	if s.UserAgent == "" {
		s.UserAgent = opts.UserAgent
	}
	if s.Locale == "" {
		s.Locale = opts.Locale
	}
	headers := make(map[string]string, len(opts.ExtraHeaders)+len(s.ExtraHeaders))
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	for k, v := range s.ExtraHeaders {
		headers[k] = v
	}
	s.ExtraHeaders = headers
	return s
}

// decodeResult converts a loosely typed evaluation result into out.
func decodeResult(result any, out any) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}
