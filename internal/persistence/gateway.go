// Package persistence turns a reconciled item into one stored product,
// deduplicated by its canonical source key.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/translate"
)

var (
	// ErrDuplicate means the source key is already stored. Nothing was written.
	ErrDuplicate = errors.New("product already imported")
	ErrInvalid   = errors.New("product record is invalid")
)

// Store is the product side of the database layer.
type Store interface {
	ExistsBySourceKey(ctx context.Context, sourceKey string) (uuid.UUID, bool, error)
	CreateProduct(ctx context.Context, p *models.PersistedProduct) (bool, error)
}

// EmbeddingTrigger requests the embedding build for a stored product.
type EmbeddingTrigger interface {
	TriggerEmbedding(ctx context.Context, productID uuid.UUID, sourceKey string) error
}

type Config struct {
	WriteTimeout   time.Duration
	TriggerTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   15 * time.Second,
		TriggerTimeout: 10 * time.Second,
	}
}

type Gateway struct {
	store    Store
	trigger  EmbeddingTrigger
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewGateway accepts a nil trigger, in which case no embedding is requested.
func NewGateway(store Store, trigger EmbeddingTrigger, cfg Config) *Gateway {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = def.TriggerTimeout
	}
	return &Gateway{
		store:    store,
		trigger:  trigger,
		cfg:      cfg,
		validate: validator.New(),
		logger:   slog.Default().With("component", "persistence"),
	}
}

// Save stores p unless its source key is already known. On ErrDuplicate the
// returned id is the existing product's id when it could be determined.
func (g *Gateway) Save(ctx context.Context, p *models.PersistedProduct) (uuid.UUID, error) {
	if p.SourceKey == "" {
		p.SourceKey = CanonicalKey(p.SourceURL)
	}
	if err := g.validate.Struct(p); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	if translate.IsPlaceholder(p.Name) {
		return uuid.Nil, fmt.Errorf("%w: placeholder name %q", ErrInvalid, p.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()

	existing, found, err := g.store.ExistsBySourceKey(ctx, p.SourceKey)
	if err != nil {
		return uuid.Nil, err
	}
	if found {
		g.logger.Info("product already imported", "source_key", p.SourceKey, "product_id", existing)
		return existing, ErrDuplicate
	}

	created, err := g.store.CreateProduct(ctx, p)
	if err != nil {
		return uuid.Nil, err
	}
	if !created {
		g.logger.Info("product stored concurrently", "source_key", p.SourceKey)
		return uuid.Nil, ErrDuplicate
	}

	g.logger.Info("product stored",
		"product_id", p.ID,
		"source_key", p.SourceKey,
		"images", len(p.Images),
		"variants", len(p.Variants))

	g.fireEmbedding(ctx, p.ID, p.SourceKey)
	return p.ID, nil
}

// Wait blocks until every embedding request started by Save has finished.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) fireEmbedding(ctx context.Context, id uuid.UUID, sourceKey string) {
	if g.trigger == nil {
		return
	}

	// The product is committed; the request must outlive the caller.
	ctx = context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, g.cfg.TriggerTimeout)
		defer cancel()

		if err := g.trigger.TriggerEmbedding(ctx, id, sourceKey); err != nil {
			g.logger.Error("embedding request failed", "product_id", id, "error", err)
			return
		}
		g.logger.Debug("embedding requested", "product_id", id)
	}()
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag())
	}
	return msg
}
