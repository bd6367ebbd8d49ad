package extract

import (
	"context"
	"log/slog"

	"github.com/maltedev/storefront-importer/internal/browser"
)

// Strategy is one way of reading a field from the page.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context, page browser.Page) ([]T, error)
}

// FirstSuccess runs strategies in order and returns the valid results of the
// first one that produced at least one valid item, together with its name.
// Strategy errors are treated as misses.
func FirstSuccess[T any](ctx context.Context, page browser.Page, logger *slog.Logger, strategies []Strategy[T], valid func(T) bool) ([]T, string) {
	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil, ""
		}

		items, err := s.Run(ctx, page)
		if err != nil {
			logger.Debug("strategy failed", "strategy", s.Name, "error", err)
			continue
		}

		kept := items[:0:0]
		for _, item := range items {
			if valid == nil || valid(item) {
				kept = append(kept, item)
			}
		}
		if len(kept) > 0 {
			return kept, s.Name
		}
		logger.Debug("strategy yielded nothing", "strategy", s.Name)
	}
	return nil, ""
}
