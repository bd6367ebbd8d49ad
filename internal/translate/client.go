package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/maltedev/storefront-importer/internal/jsonscan"
	"github.com/maltedev/storefront-importer/internal/ratelimit"
)

var (
	// ErrTimeout is returned when a model call hits its deadline. It is
	// never retried.
	ErrTimeout = errors.New("translation request timed out")
	// ErrExhausted is returned when every attempt failed.
	ErrExhausted = errors.New("translation attempts exhausted")
	// ErrMalformed marks a reply that did not contain the expected JSON.
	ErrMalformed = errors.New("translation reply is not valid JSON")
)

type ClientConfig struct {
	PrimaryModel  string
	FallbackModel string
	Timeout       time.Duration
	MaxAttempts   int
	BackoffStep   time.Duration
	// RequestsPerMinute paces calls client-side; zero disables pacing.
	RequestsPerMinute int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PrimaryModel:      "gemini-2.5-flash",
		FallbackModel:     "gemini-2.0-flash",
		Timeout:           60 * time.Second,
		MaxAttempts:       3,
		BackoffStep:       2 * time.Second,
		RequestsPerMinute: 30,
	}
}

// Observer receives per-call events; the pipeline wires it to metrics.
type Observer interface {
	Attempt(model string, err error)
	Fallback(from, to string)
}

type nopObserver struct{}

func (nopObserver) Attempt(string, error)  {}
func (nopObserver) Fallback(string, string) {}

type Client struct {
	model    Model
	cfg      ClientConfig
	limiter  *rate.Limiter
	delayer  ratelimit.Delayer
	observer Observer
	logger   *slog.Logger
}

func NewClient(model Model, cfg ClientConfig, delayer ratelimit.Delayer) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if delayer == nil {
		delayer = ratelimit.NewHumanizer()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		model:    model,
		cfg:      cfg,
		limiter:  limiter,
		delayer:  delayer,
		observer: nopObserver{},
		logger:   slog.Default().With("component", "translator"),
	}
}

func (c *Client) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}

// Generate sends prompt to the primary model and, when that model reports
// it is busy, once to the fallback model. A timeout on either call returns
// ErrTimeout.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reply, err := c.call(ctx, c.cfg.PrimaryModel, prompt)
	if err == nil || !IsBusy(err) || c.cfg.FallbackModel == "" {
		return reply, err
	}

	c.logger.Warn("primary model busy, using fallback", "primary", c.cfg.PrimaryModel, "fallback", c.cfg.FallbackModel, "error", err)
	c.observer.Fallback(c.cfg.PrimaryModel, c.cfg.FallbackModel)
	return c.call(ctx, c.cfg.FallbackModel, prompt)
}

func (c *Client) call(ctx context.Context, model, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reply, err := c.model.Generate(callCtx, model, prompt)
	c.observer.Attempt(model, err)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s: %v", ErrTimeout, model, err)
	}
	return "", err
}

// generateJSON makes one request and decodes the first JSON value in the
// reply that fits T. Brackets in surrounding prose are skipped this way.
func generateJSON[T any](ctx context.Context, c *Client, prompt string) (T, error) {
	var zero T
	reply, err := c.Generate(ctx, prompt)
	if err != nil {
		return zero, err
	}

	candidates := jsonscan.Candidates(reply)
	if len(candidates) == 0 {
		candidates = []string{jsonscan.Clean(reply)}
	}

	var decodeErr error
	for _, candidate := range candidates {
		var out T
		if decodeErr = json.Unmarshal([]byte(candidate), &out); decodeErr == nil {
			return out, nil
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrMalformed, decodeErr)
}

// completeJSON retries generateJSON with linear backoff. Timeouts and
// caller cancellation end the loop at once.
func completeJSON[T any](ctx context.Context, c *Client, prompt string, accept func(T) error) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		out, err := generateJSON[T](ctx, c, prompt)
		if err == nil && accept != nil {
			err = accept(out)
		}
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, ErrTimeout) {
			return zero, err
		}

		lastErr = err
		c.logger.Warn("translation attempt failed", "attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "error", err)

		if attempt < c.cfg.MaxAttempts {
			wait := time.Duration(attempt) * c.cfg.BackoffStep
			if err := c.delayer.Pause(ctx, wait, wait); err != nil {
				return zero, err
			}
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, c.cfg.MaxAttempts, lastErr)
}
