// Package variant merges raw SKU entries, translated labels and per-SKU
// prices into the flat variant list stored with a product.
package variant

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/maltedev/storefront-importer/internal/extract"
	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/pricing"
	"github.com/maltedev/storefront-importer/internal/translate"
)

// DefaultDenylist marks groups that are placeholders for seller workflows
// rather than real purchasable variants.
var DefaultDenylist = []string{
	"custom order",
	"customized",
	"deposit",
	"contact seller",
	"contact customer service",
	"price adjustment",
	"定制",
	"订制",
	"定金",
	"订金",
	"联系客服",
	"拍下改价",
	"补差价",
	"주문 제작",
	"보증금",
	"판매자 문의",
}

// Input is everything the reconciler needs for one item.
type Input struct {
	Entries []models.SKUEntry
	Axes    []string
	Labels  *models.EnrichedProduct
	// Quote carries weight, dimensions, domestic fee and method; its
	// BasePrice is replaced per group.
	Quote            pricing.Input
	SourceMultiplier decimal.Decimal
	// BaseFinal is the item's final price, used when a SKU has no price
	// of its own.
	BaseFinal decimal.Decimal
}

// Result is the reconciled variant schema. SizeAxis is empty when the
// item has a single axis.
type Result struct {
	ColorAxis string
	SizeAxis  string
	Groups    []models.VariantOption
	Dropped   int
}

type Reconciler struct {
	engine    *pricing.Engine
	denylist  []string
	colorAxis string
	sizeAxis  string
	logger    *slog.Logger
}

type Option func(*Reconciler)

func WithDenylist(phrases []string) Option {
	return func(r *Reconciler) { r.denylist = phrases }
}

// WithAxisNames sets the names used when the source did not expose axis
// names of its own.
func WithAxisNames(color, size string) Option {
	return func(r *Reconciler) {
		r.colorAxis = color
		r.sizeAxis = size
	}
}

func NewReconciler(engine *pricing.Engine, opts ...Option) *Reconciler {
	r := &Reconciler{
		engine:    engine,
		denylist:  DefaultDenylist,
		colorAxis: "Color",
		sizeAxis:  "Size",
		logger:    slog.Default().With("component", "variant_reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type groupKey struct {
	color string
	price string
}

type pair struct {
	color string
	size  string
}

// Reconcile groups entries by translated color and unit price. Sizes that
// share both end up in one group, in order of first appearance. When the
// source only has a size axis, every size becomes its own group.
func (r *Reconciler) Reconcile(in Input) Result {
	res := Result{}
	if len(in.Entries) == 0 {
		return res
	}

	colorRaw, sizeRaw := splitAxes(in.Axes)
	flattened := isFlattened(in.Entries)

	switch {
	case flattened:
		res.ColorAxis = r.axisLabel(in.Labels, sizeRaw, r.sizeAxis)
	default:
		res.ColorAxis = r.axisLabel(in.Labels, colorRaw, r.colorAxis)
		if hasSizes(in.Entries) {
			res.SizeAxis = r.axisLabel(in.Labels, sizeRaw, r.sizeAxis)
		}
	}

	index := make(map[groupKey]int)
	seen := make(map[pair]pair)

	for _, entry := range in.Entries {
		first, second := entry.Key.Parts()
		if flattened {
			first, second = second, ""
		}
		if first == "" && second == "" {
			res.Dropped++
			continue
		}

		if r.denied(first) || r.denied(second) {
			r.logger.Debug("dropping denylisted SKU", "key", entry.Key)
			res.Dropped++
			continue
		}

		color := label(in.Labels, first)
		size := label(in.Labels, second)
		if r.denied(color) || r.denied(size) {
			r.logger.Debug("dropping denylisted SKU", "key", entry.Key, "color", color)
			res.Dropped++
			continue
		}

		p := pair{color: color, size: size}
		raw := pair{color: first, size: second}
		if _, dup := seen[p]; dup {
			p = distinctPair(seen, p, raw)
			r.logger.Debug("relabelled colliding SKU pair", "key", entry.Key, "color", p.color, "size", p.size)
			color, size = p.color, p.size
		}
		seen[p] = raw

		price := r.unitPrice(in, entry.PriceText)
		if !price.IsPositive() {
			r.logger.Warn("dropping SKU without a usable price", "key", entry.Key, "price_text", entry.PriceText)
			res.Dropped++
			continue
		}

		gk := groupKey{color: color, price: price.String()}
		i, ok := index[gk]
		if !ok {
			i = len(res.Groups)
			index[gk] = i
			res.Groups = append(res.Groups, models.VariantOption{
				Color:     color,
				UnitPrice: price,
			})
		}

		g := &res.Groups[i]
		if size != "" {
			g.Sizes = append(g.Sizes, size)
		}
		if g.ThumbnailURL == "" && entry.ImageURL != "" {
			g.ThumbnailURL = entry.ImageURL
		}
		g.SourceKeys = append(g.SourceKeys, entry.Key)
	}

	if res.Dropped > 0 {
		r.logger.Info("variants reconciled", "groups", len(res.Groups), "dropped", res.Dropped)
	}
	return res
}

// unitPrice runs the engine on the SKU's own price. Without one, or when
// the engine rejects it, the item's base final price applies.
func (r *Reconciler) unitPrice(in Input, priceText string) decimal.Decimal {
	amount, ok := extract.ParseAmount(priceText)
	if !ok || !amount.IsPositive() {
		return in.BaseFinal
	}
	if in.SourceMultiplier.IsPositive() {
		amount = amount.Mul(in.SourceMultiplier)
	}

	q := in.Quote
	q.BasePrice = amount
	if final := r.engine.Final(q); final.IsPositive() {
		return final
	}
	return in.BaseFinal
}

// distinctPair relabels a pair whose translation collides with an earlier
// SKU. Only the axis whose raw label differs from the earlier SKU's is
// relabelled: the script-stripped raw label first, then the translation
// with the raw label appended, then a numeric suffix.
func distinctPair(seen map[pair]pair, p, raw pair) pair {
	prev := seen[p]

	var candidates []pair
	if raw.color != prev.color {
		if v := translate.StripSourceScript(raw.color); v != "" && v != p.color {
			candidates = append(candidates, pair{color: v, size: p.size})
		}
		candidates = append(candidates, pair{color: withRaw(p.color, raw.color), size: p.size})
	}
	if raw.size != prev.size {
		if v := translate.StripSourceScript(raw.size); v != "" && v != p.size {
			candidates = append(candidates, pair{color: p.color, size: v})
		}
		candidates = append(candidates, pair{color: p.color, size: withRaw(p.size, raw.size)})
	}
	candidates = append(candidates, pair{color: withRaw(p.color, raw.color), size: withRaw(p.size, raw.size)})

	for _, c := range candidates {
		if _, taken := seen[c]; !taken {
			return c
		}
	}

	for n := 2; ; n++ {
		c := pair{color: fmt.Sprintf("%s %d", p.color, n), size: p.size}
		if p.color == "" {
			c = pair{size: fmt.Sprintf("%s %d", p.size, n)}
		}
		if _, taken := seen[c]; !taken {
			return c
		}
	}
}

func withRaw(translated, raw string) string {
	if translated == "" || translated == raw {
		return raw
	}
	return translated + " (" + raw + ")"
}

func (r *Reconciler) denied(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	for _, phrase := range r.denylist {
		if strings.Contains(s, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (r *Reconciler) axisLabel(labels *models.EnrichedProduct, raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	if v := label(labels, raw); v != "" {
		return v
	}
	return fallback
}

// label returns the translation of raw, else raw without source-script
// runes, else raw itself.
func label(labels *models.EnrichedProduct, raw string) string {
	if raw == "" {
		return ""
	}
	if v, ok := labels.Label(raw); ok {
		return v
	}
	if v := translate.StripSourceScript(raw); v != "" {
		return v
	}
	return raw
}

// splitAxes picks the first size-like axis and the first other axis.
func splitAxes(axes []string) (color, size string) {
	for _, a := range axes {
		switch {
		case models.IsSizeAxis(a):
			if size == "" {
				size = a
			}
		case color == "":
			color = a
		}
	}
	return color, size
}

// isFlattened reports whether every key carries only a size part.
func isFlattened(entries []models.SKUEntry) bool {
	for _, e := range entries {
		first, second := e.Key.Parts()
		if first != "" || second == "" {
			return false
		}
	}
	return true
}

func hasSizes(entries []models.SKUEntry) bool {
	for _, e := range entries {
		if _, second := e.Key.Parts(); second != "" {
			return true
		}
	}
	return false
}
