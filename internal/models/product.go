package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompositeKeySeparator joins the color and size parts of a SKU key.
const CompositeKeySeparator = ">"

// CompositeKey identifies one SKU combination as {color, size?}.
type CompositeKey string

// NewCompositeKey builds a key from its parts. An empty size yields a
// single-part key.
func NewCompositeKey(color, size string) CompositeKey {
	color = strings.TrimSpace(color)
	size = strings.TrimSpace(size)
	if size == "" {
		return CompositeKey(color)
	}
	if color == "" {
		return CompositeKey(CompositeKeySeparator + size)
	}
	return CompositeKey(color + CompositeKeySeparator + size)
}

// Parts decodes the key. The HTML-escaped separator emitted by some
// storefronts is accepted as well.
func (k CompositeKey) Parts() (first, second string) {
	s := strings.ReplaceAll(string(k), "&gt;", CompositeKeySeparator)
	before, after, found := strings.Cut(s, CompositeKeySeparator)
	if !found {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// SKUEntry is one row of the source SKU/option map.
type SKUEntry struct {
	Key       CompositeKey `json:"key"`
	PriceText string       `json:"price_text"`
	ImageURL  string       `json:"image_url,omitempty"`
}

type Review struct {
	Author    string   `json:"author"`
	Text      string   `json:"text"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
}

type Dimensions struct {
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

func (d *Dimensions) IsValid() bool {
	return d != nil && (d.LengthCm > 0 || d.WidthCm > 0 || d.HeightCm > 0)
}

// RawProductCapture is everything read from the storefront for one item.
// It is produced once and not modified after capture.
type RawProductCapture struct {
	SourceURL            string            `json:"source_url"`
	OfferID              string            `json:"offer_id,omitempty"`
	Title                string            `json:"title"`
	PriceText            string            `json:"price_text"`
	ImageURLs            []string          `json:"image_urls"`
	DescriptionText      string            `json:"description_text"`
	Attributes           map[string]string `json:"attributes,omitempty"`
	OptionAxes           []string          `json:"option_axes,omitempty"`
	SKUEntries           []SKUEntry        `json:"sku_entries,omitempty"`
	Reviews              []Review          `json:"reviews,omitempty"`
	DescriptionImageURLs []string          `json:"description_image_urls,omitempty"`
	WeightKg             float64           `json:"weight_kg,omitempty"`
	Dimensions           *Dimensions       `json:"dimensions,omitempty"`
	Degraded             []string          `json:"degraded,omitempty"`
	CapturedAt           time.Time         `json:"captured_at"`
}

type MarketingMetadata struct {
	Synonyms           []string `json:"synonyms"`
	Tags               []string `json:"tags"`
	CategorySuggestion string   `json:"category_suggestion"`
}

// TranslatedReview keeps the original text next to its translation.
type TranslatedReview struct {
	Author         string   `json:"author"`
	Text           string   `json:"text"`
	TranslatedText string   `json:"translated_text,omitempty"`
	PhotoURLs      []string `json:"photo_urls,omitempty"`
}

// EnrichedProduct is the translated view of a capture.
type EnrichedProduct struct {
	NameTranslated        string             `json:"name_translated"`
	DescriptionTranslated string             `json:"description_translated"`
	AttributeTable        map[string]string  `json:"attribute_table"`
	Marketing             MarketingMetadata  `json:"marketing"`
	IsRestricted          bool               `json:"is_restricted"`
	Labels                map[string]string  `json:"labels,omitempty"`
	Reviews               []TranslatedReview `json:"reviews,omitempty"`
}

// Label returns the translated form of a raw option label.
func (e *EnrichedProduct) Label(raw string) (string, bool) {
	if e == nil || e.Labels == nil {
		return "", false
	}
	v, ok := e.Labels[raw]
	return v, ok && v != ""
}

type ShippingMethod string

const (
	ShippingAir ShippingMethod = "AIR"
	ShippingSea ShippingMethod = "SEA"
)

type PriceQuote struct {
	BasePrice   decimal.Decimal `json:"base_price"`
	DomesticFee decimal.Decimal `json:"domestic_fee"`
	WeightKg    float64         `json:"weight_kg"`
	Dimensions  *Dimensions     `json:"dimensions,omitempty"`
	Method      ShippingMethod  `json:"method"`
	Shipping    decimal.Decimal `json:"shipping"`
	FinalPrice  decimal.Decimal `json:"final_price"`
}

// VariantOption is one color-bearing SKU group with the sizes sharing its price.
type VariantOption struct {
	Color        string          `json:"color"`
	Sizes        []string        `json:"sizes"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ThumbnailURL string          `json:"thumbnail_url,omitempty"`
	SourceKeys   []CompositeKey  `json:"source_keys"`
}

type ImageType string

const (
	ImageGallery     ImageType = "GALLERY"
	ImageDescription ImageType = "DESCRIPTION"
)

// DescriptionSortOffset keeps description images after gallery images
// regardless of gallery size.
const DescriptionSortOffset = 1000

type ProductImage struct {
	URL       string    `json:"url" validate:"required,url"`
	Type      ImageType `json:"type" validate:"oneof=GALLERY DESCRIPTION"`
	SortOrder int       `json:"sort_order"`
}

type ProductOption struct {
	Name   string   `json:"name" validate:"required"`
	Values []string `json:"values" validate:"min=1"`
}

type ProductVariant struct {
	Combination map[string]string `json:"combination" validate:"min=1"`
	Price       decimal.Decimal   `json:"price"`
	ImageURL    string            `json:"image_url,omitempty"`
}

// PersistedProduct is the durable record written once per source item.
type PersistedProduct struct {
	ID           uuid.UUID          `json:"id"`
	SourceKey    string             `json:"source_key" validate:"required"`
	SourceURL    string             `json:"source_url" validate:"required,url"`
	CanonicalURL string             `json:"canonical_url"`
	Name         string             `json:"name" validate:"required"`
	Description  string             `json:"description"`
	Specs        map[string]string  `json:"specs"`
	BaseCost     decimal.Decimal    `json:"base_cost"`
	FinalPrice   decimal.Decimal    `json:"final_price"`
	Images       []ProductImage     `json:"images" validate:"min=1,dive"`
	Options      []ProductOption    `json:"options" validate:"dive"`
	Variants     []ProductVariant   `json:"variants" validate:"dive"`
	IsRestricted bool               `json:"is_restricted"`
	Reviews      []TranslatedReview `json:"reviews,omitempty"`
	AIMetadata   MarketingMetadata  `json:"ai_metadata"`
	CreatedAt    time.Time          `json:"created_at"`
}
