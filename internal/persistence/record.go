package persistence

import (
	"strings"

	"github.com/maltedev/storefront-importer/internal/extract"
	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/translate"
	"github.com/maltedev/storefront-importer/internal/variant"
)

// NewRecord assembles the durable record for one item. The name and
// description come from the enrichment; the raw capture only contributes
// the source URL and images.
func NewRecord(raw *models.RawProductCapture, enriched *models.EnrichedProduct, quote models.PriceQuote, variants variant.Result) *models.PersistedProduct {
	p := &models.PersistedProduct{
		SourceKey:    CanonicalKey(raw.SourceURL),
		SourceURL:    raw.SourceURL,
		CanonicalURL: CanonicalURL(raw.SourceURL),
		Name:         translate.StripSourceScript(enriched.NameTranslated),
		Description:  strings.TrimSpace(enriched.DescriptionTranslated),
		Specs:        enriched.AttributeTable,
		BaseCost:     quote.BasePrice,
		FinalPrice:   quote.FinalPrice,
		Images:       recordImages(raw.ImageURLs, raw.DescriptionImageURLs),
		Options:      variants.Options(),
		Variants:     variants.Variants(),
		IsRestricted: enriched.IsRestricted,
		Reviews:      enriched.Reviews,
		AIMetadata:   enriched.Marketing,
	}
	if raw.OfferID != "" {
		p.SourceKey = offerKeyPrefix + raw.OfferID
	}
	return p
}

// recordImages orders gallery images 0..n and description images from
// models.DescriptionSortOffset. A description image already in the gallery
// is kept only once, as a gallery image.
func recordImages(gallery, description []string) []models.ProductImage {
	seen := make(map[string]struct{}, len(gallery)+len(description))
	images := make([]models.ProductImage, 0, len(gallery)+len(description))

	add := func(raw string, typ models.ImageType, sort int) bool {
		key := extract.NormalizeImageURL(raw)
		if key == "" {
			return false
		}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		images = append(images, models.ProductImage{URL: key, Type: typ, SortOrder: sort})
		return true
	}

	n := 0
	for _, u := range gallery {
		if add(u, models.ImageGallery, n) {
			n++
		}
	}
	n = 0
	for _, u := range description {
		if add(u, models.ImageDescription, models.DescriptionSortOffset+n) {
			n++
		}
	}
	return images
}
