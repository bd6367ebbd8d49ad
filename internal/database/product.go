package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/storefront-importer/internal/models"
)

// ProductSummary is the lookup view of a stored product.
type ProductSummary struct {
	ID         uuid.UUID       `json:"id"`
	SourceKey  string          `json:"source_key"`
	SourceURL  string          `json:"source_url"`
	Name       string          `json:"name"`
	FinalPrice decimal.Decimal `json:"final_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ExistsBySourceKey reports whether a product with the canonical key is
// already stored and returns its id.
func (db *DB) ExistsBySourceKey(ctx context.Context, sourceKey string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		"SELECT id FROM products WHERE source_key = $1", sourceKey,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to look up product: %w", err)
	}
	return id, true, nil
}

// LookupProduct finds a product by source key, or by canonical URL when it
// was stored under an item id the URL does not carry. An exact key match
// wins. It returns nil without error when no product matches.
func (db *DB) LookupProduct(ctx context.Context, sourceKey, canonicalURL string) (*ProductSummary, error) {
	query := `
		SELECT id, source_key, source_url, name, final_price, created_at
		FROM products
		WHERE source_key = $1 OR canonical_url = $2
		ORDER BY (source_key = $1) DESC, created_at
		LIMIT 1`

	p := &ProductSummary{}
	err := db.pool.QueryRow(ctx, query, sourceKey, canonicalURL).Scan(
		&p.ID, &p.SourceKey, &p.SourceURL, &p.Name, &p.FinalPrice, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// CreateProduct writes the product with its images, options and variants
// in one transaction. It returns false when another writer stored the same
// source key first; nothing is written in that case.
func (db *DB) CreateProduct(ctx context.Context, p *models.PersistedProduct) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	created := false
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		ok, err := insertProduct(ctx, tx, p)
		if err != nil || !ok {
			return err
		}
		if err := insertImages(ctx, tx, p.ID, p.Images); err != nil {
			return err
		}
		if err := insertOptions(ctx, tx, p.ID, p.Options); err != nil {
			return err
		}
		if err := insertVariants(ctx, tx, p.ID, p.Variants); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func insertProduct(ctx context.Context, tx pgx.Tx, p *models.PersistedProduct) (bool, error) {
	specs, err := json.Marshal(nonNilMap(p.Specs))
	if err != nil {
		return false, fmt.Errorf("failed to marshal specs: %w", err)
	}
	reviews, err := json.Marshal(nonNilSlice(p.Reviews))
	if err != nil {
		return false, fmt.Errorf("failed to marshal reviews: %w", err)
	}
	meta, err := json.Marshal(p.AIMetadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal ai metadata: %w", err)
	}

	query := `
		INSERT INTO products (
			id, source_key, source_url, canonical_url, name, description,
			specs, base_cost, final_price, is_restricted,
			reviews, ai_metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (source_key) DO NOTHING
		RETURNING id`

	var id uuid.UUID
	err = tx.QueryRow(ctx, query,
		p.ID, p.SourceKey, p.SourceURL, p.CanonicalURL, p.Name, p.Description,
		specs, p.BaseCost, p.FinalPrice, p.IsRestricted,
		reviews, meta, p.CreatedAt,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert product: %w", err)
	}
	p.ID = id
	return true, nil
}

func insertImages(ctx context.Context, tx pgx.Tx, productID uuid.UUID, images []models.ProductImage) error {
	if len(images) == 0 {
		return nil
	}

	args := make([]any, 0, len(images)*4)
	for _, img := range images {
		args = append(args, productID, img.URL, string(img.Type), img.SortOrder)
	}

	query := "INSERT INTO product_images (product_id, url, image_type, sort_order) VALUES " + placeholders(len(images), 4)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert images: %w", err)
	}
	return nil
}

func insertOptions(ctx context.Context, tx pgx.Tx, productID uuid.UUID, options []models.ProductOption) error {
	if len(options) == 0 {
		return nil
	}

	args := make([]any, 0, len(options)*4)
	for i, opt := range options {
		values, err := json.Marshal(opt.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal option values: %w", err)
		}
		args = append(args, productID, opt.Name, values, i)
	}

	query := "INSERT INTO product_options (product_id, name, option_values, position) VALUES " + placeholders(len(options), 4)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert options: %w", err)
	}
	return nil
}

func insertVariants(ctx context.Context, tx pgx.Tx, productID uuid.UUID, variants []models.ProductVariant) error {
	if len(variants) == 0 {
		return nil
	}

	args := make([]any, 0, len(variants)*4)
	for _, v := range variants {
		combination, err := json.Marshal(v.Combination)
		if err != nil {
			return fmt.Errorf("failed to marshal variant combination: %w", err)
		}
		args = append(args, productID, combination, v.Price, v.ImageURL)
	}

	query := "INSERT INTO product_variants (product_id, combination, price, image_url) VALUES " + placeholders(len(variants), 4)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert variants: %w", err)
	}
	return nil
}

// placeholders renders "($1, $2), ($3, $4)" for rows×cols parameters.
func placeholders(rows, cols int) string {
	var sb strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
