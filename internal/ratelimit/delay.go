package ratelimit

import (
	"context"
	"time"
)

// Delayer is the pause capability injected into anything that simulates a
// human between UI actions or backs off between retries.
type Delayer interface {
	Pause(ctx context.Context, min, max time.Duration) error
}

// Humanizer sleeps for a random duration inside [min, max).
type Humanizer struct{}

func NewHumanizer() *Humanizer {
	return &Humanizer{}
}

func (h *Humanizer) Pause(ctx context.Context, min, max time.Duration) error {
	d := jitterBetween(min, max, true)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay returns immediately. It records the requested lower bounds so
// tests can assert on the pacing that would have happened.
type NoDelay struct {
	Requested []time.Duration
}

func (n *NoDelay) Pause(ctx context.Context, min, _ time.Duration) error {
	n.Requested = append(n.Requested, min)
	return ctx.Err()
}
