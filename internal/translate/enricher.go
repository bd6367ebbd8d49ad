// Package translate turns captured source text into the store's language
// through a language model, and filters the replies so no source-script
// residue or placeholder text survives.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/storefront-importer/internal/models"
)

// Limits caps each input field, in runes.
type Limits struct {
	Title       int
	Description int
	Label       int
	Review      int
}

func DefaultLimits() Limits {
	return Limits{Title: 300, Description: 3000, Label: 80, Review: 500}
}

type EnricherConfig struct {
	TargetLanguage string
	ChunkSize      int
	Limits         Limits
}

func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{
		TargetLanguage: "Korean",
		ChunkSize:      20,
		Limits:         DefaultLimits(),
	}
}

type Enricher struct {
	client *Client
	cfg    EnricherConfig
	logger *slog.Logger
}

func NewEnricher(client *Client, cfg EnricherConfig) *Enricher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultEnricherConfig().ChunkSize
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = DefaultEnricherConfig().TargetLanguage
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	return &Enricher{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "enricher"),
	}
}

type productReply struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Attributes   map[string]string `json:"attributes"`
	Synonyms     []string          `json:"synonyms"`
	Tags         []string          `json:"tags"`
	Category     string            `json:"category"`
	IsRestricted bool              `json:"is_restricted"`
}

var errPlaceholderName = errors.New("reply name is empty or a placeholder")

// Enrich translates one capture. An error means the item must be skipped:
// the product group failed after every attempt, timed out, or the caller
// cancelled. Label and review failures only leave those entries
// untranslated.
func (e *Enricher) Enrich(ctx context.Context, c *models.RawProductCapture) (*models.EnrichedProduct, error) {
	attrs := make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		attrs[truncate(k, e.cfg.Limits.Label)] = truncate(v, e.cfg.Limits.Label)
	}

	prompt := productPrompt(e.cfg.TargetLanguage,
		truncate(c.Title, e.cfg.Limits.Title),
		truncate(c.DescriptionText, e.cfg.Limits.Description),
		attrs,
	)

	reply, err := completeJSON(ctx, e.client, prompt, func(r productReply) error {
		if name := StripSourceScript(r.Name); IsPlaceholder(name) {
			return errPlaceholderName
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", c.SourceURL, err)
	}

	enriched := &models.EnrichedProduct{
		NameTranslated:        StripSourceScript(reply.Name),
		DescriptionTranslated: StripSourceScript(reply.Description),
		AttributeTable:        filterAttributes(reply.Attributes),
		Marketing: models.MarketingMetadata{
			Synonyms:           cleanList(reply.Synonyms),
			Tags:               cleanList(reply.Tags),
			CategorySuggestion: StripSourceScript(reply.Category),
		},
		IsRestricted: reply.IsRestricted,
	}

	enriched.Labels, err = e.translateLabels(ctx, c)
	if err != nil {
		return nil, err
	}
	enriched.Reviews, err = e.translateReviews(ctx, c.Reviews)
	if err != nil {
		return nil, err
	}

	e.logger.Info("item enriched",
		"url", c.SourceURL,
		"name", enriched.NameTranslated,
		"attributes", len(enriched.AttributeTable),
		"labels", len(enriched.Labels),
		"reviews", len(enriched.Reviews),
	)
	return enriched, nil
}

func filterAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := StripSourceScript(k)
		val := StripSourceScript(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}

// translateLabels translates every distinct option label and axis name.
func (e *Enricher) translateLabels(ctx context.Context, c *models.RawProductCapture) (map[string]string, error) {
	var raw []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		raw = append(raw, s)
	}
	for _, axis := range c.OptionAxes {
		add(axis)
	}
	for _, sku := range c.SKUEntries {
		first, second := sku.Key.Parts()
		add(first)
		add(second)
	}
	if len(raw) == 0 {
		return map[string]string{}, nil
	}

	inputs := make([]string, len(raw))
	for i, s := range raw {
		inputs[i] = truncate(s, e.cfg.Limits.Label)
	}

	translated, err := e.TranslateBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]string, len(raw))
	for i, s := range raw {
		if v := StripSourceScript(translated[inputs[i]]); v != "" {
			labels[s] = v
		}
	}
	return labels, nil
}

func (e *Enricher) translateReviews(ctx context.Context, reviews []models.Review) ([]models.TranslatedReview, error) {
	if len(reviews) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(reviews))
	for _, r := range reviews {
		inputs = append(inputs, truncate(r.Text, e.cfg.Limits.Review))
	}

	translated, err := e.TranslateBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	out := make([]models.TranslatedReview, 0, len(reviews))
	for i, r := range reviews {
		out = append(out, models.TranslatedReview{
			Author:         r.Author,
			Text:           r.Text,
			TranslatedText: StripSourceScript(translated[inputs[i]]),
			PhotoURLs:      r.PhotoURLs,
		})
	}
	return out, nil
}

// TranslateBatch translates texts in chunks. A chunk that fails is split in
// half and each half retried on its own until single items either succeed
// or are dropped, so the result may miss some inputs. Only cancellation of
// ctx is returned as an error.
func (e *Enricher) TranslateBatch(ctx context.Context, texts []string) (map[string]string, error) {
	unique := make([]string, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}

	out := make(map[string]string, len(unique))
	for start := 0; start < len(unique); start += e.cfg.ChunkSize {
		end := min(start+e.cfg.ChunkSize, len(unique))
		if err := e.translateChunk(ctx, unique[start:end], out); err != nil {
			return out, err
		}
	}

	if dropped := len(unique) - len(out); dropped > 0 {
		e.logger.Warn("some texts stayed untranslated", "dropped", dropped, "total", len(unique))
	}
	return out, nil
}

func (e *Enricher) translateChunk(ctx context.Context, items []string, out map[string]string) error {
	if len(items) == 0 {
		return nil
	}

	reply, err := generateJSON[[]string](ctx, e.client, batchPrompt(e.cfg.TargetLanguage, items))
	if err == nil && len(reply) != len(items) {
		err = fmt.Errorf("%w: expected %d items, got %d", ErrMalformed, len(items), len(reply))
	}
	if err == nil {
		for i, item := range items {
			out[item] = reply[i]
		}
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrTimeout) {
		e.logger.Warn("chunk timed out, leaving it untranslated", "size", len(items))
		return nil
	}
	if len(items) == 1 {
		e.logger.Debug("dropping untranslatable text", "text", items[0], "error", err)
		return nil
	}

	mid := len(items) / 2
	if err := e.translateChunk(ctx, items[:mid], out); err != nil {
		return err
	}
	return e.translateChunk(ctx, items[mid:], out)
}
