// Package extract reads item data from a rendered storefront page. Every
// field is read through an ordered list of strategies; a field no strategy
// can fill is left empty.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/maltedev/storefront-importer/internal/browser"
	"github.com/maltedev/storefront-importer/internal/jsonscan"
	"github.com/maltedev/storefront-importer/internal/models"
)

// Basic holds the fields readable from the main panel.
type Basic struct {
	OfferID         string
	Title           string
	PriceText       string
	ImageURLs       []string
	DescriptionText string
	Attributes      map[string]string
}

// Options is the SKU map read from the options overlay or page state.
type Options struct {
	Axes []string
	SKUs []models.SKUEntry
}

type Extractor struct {
	page   browser.Page
	filter ImageFilter
	logger *slog.Logger
}

func New(page browser.Page, filter ImageFilter) *Extractor {
	return &Extractor{
		page:   page,
		filter: filter,
		logger: slog.Default().With("component", "extractor"),
	}
}

var (
	offerPathPattern  = regexp.MustCompile(`/offer/(\d+)\.html`)
	offerBlobPattern  = regexp.MustCompile(`"(?:offerId|itemId)"\s*:\s*"?(\d{6,})`)
	titleBlobPattern  = regexp.MustCompile(`"(?:offerTitle|subject|title)"\s*:\s*"((?:[^"\\]|\\.){4,})"`)
	priceBlobPattern  = regexp.MustCompile(`"(?:priceDisplay|minPrice|price)"\s*:\s*"?(\d+(?:\.\d+)?)`)
	imageBlobMarkers  = []string{`"offerImgList":`, `"mainImageList":`, `"imageList":`, `"images":`}
	reviewBlobMarkers = []string{`"rateList":`, `"evaluateList":`, `"commentList":`}
	imageURLFields    = []string{"fullPathImageURI", "originalImageURI", "imageURI", "imageUrl", "url", "src"}
)

// OfferIDFromURL returns the numeric item id carried by a detail URL, or ""
// when the URL does not carry one.
func OfferIDFromURL(raw string) string {
	if m := offerPathPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	for _, key := range []string{"offerId", "id"} {
		if v := u.Query().Get(key); v != "" && isDigits(v) {
			return v
		}
	}
	return ""
}

func (e *Extractor) ExtractBasic(ctx context.Context) (Basic, error) {
	scripts := e.scriptTexts(ctx)

	b := Basic{OfferID: OfferIDFromURL(e.page.URL())}
	if b.OfferID == "" {
		b.OfferID = firstSubmatch(offerBlobPattern, scripts)
	}

	titles, _ := FirstSuccess(ctx, e.page, e.logger, []Strategy[string]{
		e.evalStrings("title-dom", titleDOMJS),
		staticStrings("title-state", func() []string { return unquoteAll(titleBlobPattern, scripts) }),
		e.evalStrings("document-title", documentTitleJS),
	}, nonEmpty)
	if len(titles) > 0 {
		b.Title = strings.TrimSpace(titles[0])
	}

	prices, _ := FirstSuccess(ctx, e.page, e.logger, []Strategy[string]{
		e.evalStrings("price-dom", priceDOMJS),
		staticStrings("price-state", func() []string { return allSubmatches(priceBlobPattern, scripts) }),
	}, func(s string) bool { return ParsePrice(s) != "" })
	if len(prices) > 0 {
		b.PriceText = ParsePrice(prices[0])
	}

	images, source := FirstSuccess(ctx, e.page, e.logger, []Strategy[string]{
		e.evalStrings("gallery", galleryJS),
		e.evalStrings("large-images", largeImagesJS),
		staticStrings("image-state", func() []string { return imagesFromScripts(scripts) }),
	}, e.filter.Valid)
	b.ImageURLs = e.filter.Clean(images)
	e.logger.Debug("gallery images", "source", source, "count", len(b.ImageURLs))

	b.Attributes = e.extractAttributes(ctx, scripts)
	b.DescriptionText = e.ExtractDescriptionText(ctx)

	return b, ctx.Err()
}

// ExtractDescriptionText reads the rendered description panel. It returns ""
// while the panel has not been lazy-loaded yet.
func (e *Extractor) ExtractDescriptionText(ctx context.Context) string {
	var text string
	if err := e.page.Evaluate(ctx, descriptionTextJS, &text); err != nil {
		e.logger.Debug("description text unavailable", "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *Extractor) ExtractOptions(ctx context.Context) (Options, error) {
	scripts := e.scriptTexts(ctx)

	strategies := []Strategy[Options]{
		{Name: "sku-model", Run: func(context.Context, browser.Page) ([]Options, error) {
			return optionsFromState(scripts, `"skuModel":`, "skuProps", "skuInfoMap"), nil
		}},
		{Name: "sku-map", Run: func(context.Context, browser.Page) ([]Options, error) {
			return optionsFromLooseState(scripts), nil
		}},
		{Name: "overlay", Run: e.optionsFromOverlay},
	}

	found, source := FirstSuccess(ctx, e.page, e.logger, strategies, func(o Options) bool { return len(o.SKUs) > 0 })
	if len(found) == 0 {
		return Options{}, ctx.Err()
	}

	opts := found[0]
	for i := range opts.SKUs {
		if opts.SKUs[i].ImageURL != "" && e.filter.Valid(opts.SKUs[i].ImageURL) {
			opts.SKUs[i].ImageURL = NormalizeImageURL(opts.SKUs[i].ImageURL)
		} else {
			opts.SKUs[i].ImageURL = ""
		}
	}
	e.logger.Debug("sku map", "source", source, "axes", opts.Axes, "count", len(opts.SKUs))
	return opts, ctx.Err()
}

func (e *Extractor) ExtractReviews(ctx context.Context) ([]models.Review, error) {
	reviews, source := FirstSuccess(ctx, e.page, e.logger, []Strategy[models.Review]{
		{Name: "reviews-dom", Run: func(ctx context.Context, page browser.Page) ([]models.Review, error) {
			var out []models.Review
			err := page.Evaluate(ctx, reviewsDOMJS, &out)
			return out, err
		}},
		{Name: "reviews-state", Run: func(ctx context.Context, _ browser.Page) ([]models.Review, error) {
			return reviewsFromScripts(e.scriptTexts(ctx)), nil
		}},
	}, func(r models.Review) bool { return strings.TrimSpace(r.Text) != "" })

	for i := range reviews {
		reviews[i].Text = strings.TrimSpace(reviews[i].Text)
		reviews[i].Author = strings.TrimSpace(reviews[i].Author)
		reviews[i].PhotoURLs = e.filter.Clean(reviews[i].PhotoURLs)
	}
	e.logger.Debug("reviews", "source", source, "count", len(reviews))
	return reviews, ctx.Err()
}

func (e *Extractor) ExtractDescriptionImages(ctx context.Context) ([]string, error) {
	images, source := FirstSuccess(ctx, e.page, e.logger, []Strategy[string]{
		e.evalStrings("description-dom", descriptionImagesJS),
		{Name: "description-html", Run: func(ctx context.Context, page browser.Page) ([]string, error) {
			var html string
			if err := page.Evaluate(ctx, descriptionHTMLJS, &html); err != nil {
				return nil, err
			}
			return ImagesFromHTML(html)
		}},
	}, e.filter.Valid)

	out := e.filter.Clean(images)
	e.logger.Debug("description images", "source", source, "count", len(out))
	return out, ctx.Err()
}

var backgroundURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// ImagesFromHTML lists image sources in a description fragment, including
// lazy-load attributes and inline background images.
func ImagesFromHTML(html string) ([]string, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse description html: %w", err)
	}

	var out []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"data-lazyload-src", "data-lazy-src", "data-src", "src"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = append(out, strings.TrimSpace(v))
				return
			}
		}
	})
	doc.Find("[style*='background']").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range backgroundURLPattern.FindAllStringSubmatch(style, -1) {
			out = append(out, m[1])
		}
	})
	return out, nil
}

func (e *Extractor) extractAttributes(ctx context.Context, scripts []string) map[string]string {
	type pair struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	pairs, _ := FirstSuccess(ctx, e.page, e.logger, []Strategy[pair]{
		{Name: "attributes-dom", Run: func(ctx context.Context, page browser.Page) ([]pair, error) {
			var out []pair
			err := page.Evaluate(ctx, attributesJS, &out)
			return out, err
		}},
		{Name: "attributes-state", Run: func(context.Context, browser.Page) ([]pair, error) {
			var out []pair
			for _, s := range scripts {
				res, ok := jsonscan.Extract(s, `"featureAttributes":`)
				if !ok {
					continue
				}
				res.ForEach(func(_, v gjson.Result) bool {
					value := v.Get("value").String()
					if value == "" {
						var vals []string
						for _, x := range v.Get("values").Array() {
							vals = append(vals, x.String())
						}
						value = strings.Join(vals, ", ")
					}
					out = append(out, pair{Name: v.Get("name").String(), Value: value})
					return true
				})
				break
			}
			return out, nil
		}},
	}, func(p pair) bool { return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.Value) != "" })

	if len(pairs) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name := strings.TrimSpace(p.Name)
		if _, dup := attrs[name]; !dup {
			attrs[name] = strings.TrimSpace(p.Value)
		}
	}
	return attrs
}

func (e *Extractor) optionsFromOverlay(ctx context.Context, page browser.Page) ([]Options, error) {
	var rows []struct {
		Color string `json:"color"`
		Size  string `json:"size"`
		Price string `json:"price"`
		Image string `json:"image"`
	}
	if err := page.Evaluate(ctx, skuOverlayJS, &rows); err != nil {
		return nil, err
	}

	var axes []string
	if err := page.Evaluate(ctx, optionAxesJS, &axes); err != nil {
		e.logger.Debug("option axes unavailable", "error", err)
	}

	var opts Options
	opts.Axes = axes
	seen := make(map[models.CompositeKey]struct{})
	for _, r := range rows {
		key := models.NewCompositeKey(r.Color, r.Size)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		opts.SKUs = append(opts.SKUs, models.SKUEntry{Key: key, PriceText: ParsePrice(r.Price), ImageURL: r.Image})
	}
	return []Options{opts}, nil
}

func (e *Extractor) scriptTexts(ctx context.Context) []string {
	var scripts []string
	if err := e.page.Evaluate(ctx, scriptTextsJS, &scripts); err != nil {
		e.logger.Debug("inline scripts unavailable", "error", err)
		return nil
	}
	return scripts
}

func (e *Extractor) evalStrings(name, script string) Strategy[string] {
	return Strategy[string]{Name: name, Run: func(ctx context.Context, page browser.Page) ([]string, error) {
		var out []string
		err := page.Evaluate(ctx, script, &out)
		return out, err
	}}
}

func staticStrings(name string, fn func() []string) Strategy[string] {
	return Strategy[string]{Name: name, Run: func(context.Context, browser.Page) ([]string, error) {
		return fn(), nil
	}}
}

// optionsFromState parses a SKU model blob: axis definitions under propsKey
// and per-combination data under mapKey.
func optionsFromState(scripts []string, marker, propsKey, mapKey string) []Options {
	for _, s := range scripts {
		res, ok := jsonscan.Extract(s, marker)
		if !ok {
			continue
		}
		if o := buildOptions(res.Get(propsKey), res.Get(mapKey)); len(o.SKUs) > 0 {
			return []Options{o}
		}
	}
	return nil
}

// optionsFromLooseState handles layouts that publish the props and the map
// as separate top-level keys.
func optionsFromLooseState(scripts []string) []Options {
	var props, skuMap gjson.Result
	for _, s := range scripts {
		if !props.Exists() {
			if r, ok := jsonscan.Extract(s, `"skuProps":`); ok {
				props = r
			}
		}
		if !skuMap.Exists() {
			if r, ok := jsonscan.Extract(s, `"skuMap":`); ok {
				skuMap = r
			}
		}
	}
	if !props.Exists() && !skuMap.Exists() {
		return nil
	}
	if o := buildOptions(props, skuMap); len(o.SKUs) > 0 {
		return []Options{o}
	}
	return nil
}

func buildOptions(props, skuMap gjson.Result) Options {
	var opts Options
	var axisValues [][]string
	images := make(map[string]string)

	props.ForEach(func(_, p gjson.Result) bool {
		name := strings.TrimSpace(p.Get("prop").String())
		if name == "" {
			name = strings.TrimSpace(p.Get("name").String())
		}
		opts.Axes = append(opts.Axes, name)
		var values []string
		p.Get("value").ForEach(func(_, v gjson.Result) bool {
			n := strings.TrimSpace(v.Get("name").String())
			if n == "" {
				return true
			}
			values = append(values, n)
			if img := v.Get("imageUrl").String(); img != "" {
				images[n] = img
			}
			return true
		})
		axisValues = append(axisValues, values)
		return true
	})

	sizeOnly := len(opts.Axes) == 1 && models.IsSizeAxis(opts.Axes[0])
	// Map keys follow the page's axis order; composite keys are always
	// color first.
	sizeFirst := len(opts.Axes) >= 2 && models.IsSizeAxis(opts.Axes[0]) && !models.IsSizeAxis(opts.Axes[1])
	seen := make(map[models.CompositeKey]struct{})
	add := func(first, second, price string) {
		if sizeFirst && second != "" {
			first, second = second, first
		}
		var key models.CompositeKey
		if sizeOnly && second == "" {
			key = models.NewCompositeKey("", first)
		} else {
			key = models.NewCompositeKey(first, second)
		}
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		opts.SKUs = append(opts.SKUs, models.SKUEntry{Key: key, PriceText: price, ImageURL: images[first]})
	}

	if skuMap.IsObject() {
		skuMap.ForEach(func(k, v gjson.Result) bool {
			first, second := models.CompositeKey(k.String()).Parts()
			price := v.Get("discountPrice").String()
			if ParsePrice(price) == "" {
				price = v.Get("price").String()
			}
			add(first, second, ParsePrice(price))
			return true
		})
		return opts
	}

	switch len(axisValues) {
	case 1:
		for _, v := range axisValues[0] {
			add(v, "", "")
		}
	case 2:
		for _, a := range axisValues[0] {
			for _, b := range axisValues[1] {
				add(a, b, "")
			}
		}
	}
	return opts
}

func imagesFromScripts(scripts []string) []string {
	for _, marker := range imageBlobMarkers {
		for _, s := range scripts {
			res, ok := jsonscan.Extract(s, marker)
			if !ok || !res.IsArray() {
				continue
			}
			if urls := collectURLs(res); len(urls) > 0 {
				return urls
			}
		}
	}
	return nil
}

func reviewsFromScripts(scripts []string) []models.Review {
	for _, marker := range reviewBlobMarkers {
		for _, s := range scripts {
			res, ok := jsonscan.Extract(s, marker)
			if !ok || !res.IsArray() {
				continue
			}
			var out []models.Review
			res.ForEach(func(_, r gjson.Result) bool {
				out = append(out, models.Review{
					Author:    firstString(r, "userNick", "memberName", "buyerNick", "nick"),
					Text:      firstString(r, "content", "remarkContent", "rateContent"),
					PhotoURLs: collectURLs(firstResult(r, "pics", "imageList", "images")),
				})
				return true
			})
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// collectURLs accepts an array of strings or of objects carrying the URL in
// one of the usual fields.
func collectURLs(arr gjson.Result) []string {
	var out []string
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			out = append(out, v.String())
			return true
		}
		if u := firstString(v, imageURLFields...); u != "" {
			out = append(out, u)
		}
		return true
	})
	return out
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Get(k).String()); v != "" {
			return v
		}
	}
	return ""
}

func firstResult(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func firstSubmatch(re *regexp.Regexp, texts []string) string {
	for _, t := range texts {
		if m := re.FindStringSubmatch(t); m != nil {
			return m[1]
		}
	}
	return ""
}

func allSubmatches(re *regexp.Regexp, texts []string) []string {
	var out []string
	for _, t := range texts {
		for _, m := range re.FindAllStringSubmatch(t, -1) {
			out = append(out, m[1])
		}
	}
	return out
}

func unquoteAll(re *regexp.Regexp, texts []string) []string {
	var out []string
	for _, raw := range allSubmatches(re, texts) {
		if s, err := strconv.Unquote(`"` + raw + `"`); err == nil {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func nonEmpty(s string) bool { return strings.TrimSpace(s) != "" }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
