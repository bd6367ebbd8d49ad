// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/maltedev/storefront-importer/internal/browser"
)

// Rule answers Evaluate calls whose script contains Match.
type Rule struct {
	Match  string
	Result any
	Err    error
}

// Page records every interaction and answers Evaluate from its rules. The
// first matching rule wins; OnEval, when set, is consulted before the rules.
type Page struct {
	mu sync.Mutex

	Rules       []Rule
	OnEval      func(script string) (any, bool)
	NavigateErr error
	ClickErr    error
	KeyErr      error

	CurrentURL string
	Committed  string

	Navigations []string
	Clicks      []string
	PointClicks [][2]float64
	Keys        []string
	Scrolls     []float64
	Backs       int
	Cookies     []browser.Cookie
	Scripts     []string
	Closed      bool

	// AfterClick lets a test mutate page state in response to a click.
	AfterClick func(p *Page, selector string)
	AfterKey   func(p *Page, key string)
	AfterBack  func(p *Page)
}

var _ browser.Page = (*Page)(nil)

func New(url string) *Page {
	return &Page{CurrentURL: url, Committed: url}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.CurrentURL = url
	p.Committed = url
	return nil
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Scripts = append(p.Scripts, script)
	onEval := p.OnEval
	rules := append([]Rule(nil), p.Rules...)
	p.mu.Unlock()

	if onEval != nil {
		if result, ok := onEval(script); ok {
			return decode(result, out)
		}
	}
	for _, r := range rules {
		if strings.Contains(script, r.Match) {
			if r.Err != nil {
				return r.Err
			}
			return decode(r.Result, out)
		}
	}
	return errors.New("browsertest: no rule for script")
}

func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.PointClicks = append(p.PointClicks, [2]float64{x, y})
	p.mu.Unlock()
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Clicks = append(p.Clicks, selector)
	err := p.ClickErr
	after := p.AfterClick
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if after != nil {
		after(p, selector)
	}
	return nil
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Keys = append(p.Keys, key)
	err := p.KeyErr
	after := p.AfterKey
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if after != nil {
		after(p, key)
	}
	return nil
}

func (p *Page) Scroll(ctx context.Context, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Scrolls = append(p.Scrolls, dy)
	p.mu.Unlock()
	return nil
}

func (p *Page) GoBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Backs++
	after := p.AfterBack
	p.mu.Unlock()
	if after != nil {
		after(p)
	}
	return nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cookies = append(p.Cookies, cookies...)
	return ctx.Err()
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *Page) CommittedURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Committed
}

// SetURL moves the fake tab to url as if a navigation had committed.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentURL = url
	p.Committed = url
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

func decode(result any, out any) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Launcher hands out Page for every NewPage call, or Err when set.
type Launcher struct {
	mu sync.Mutex

	Page   *Page
	Err    error
	Opened int
	Closed bool
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) NewPage(ctx context.Context, _ browser.Session) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.Opened++
	if l.Page == nil {
		l.Page = New("about:blank")
	}
	return l.Page, nil
}

func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = true
	return nil
}
