package variant

import "github.com/maltedev/storefront-importer/internal/models"

// Options returns one option per axis with distinct values in order of
// first appearance.
func (r Result) Options() []models.ProductOption {
	if len(r.Groups) == 0 {
		return nil
	}

	colors := newOrderedSet()
	sizes := newOrderedSet()
	for _, g := range r.Groups {
		colors.add(g.Color)
		for _, s := range g.Sizes {
			sizes.add(s)
		}
	}

	opts := []models.ProductOption{{Name: r.ColorAxis, Values: colors.items}}
	if r.SizeAxis != "" && len(sizes.items) > 0 {
		opts = append(opts, models.ProductOption{Name: r.SizeAxis, Values: sizes.items})
	}
	return opts
}

// Variants expands groups into one row per color/size pair, each carrying
// its group's price and thumbnail.
func (r Result) Variants() []models.ProductVariant {
	var out []models.ProductVariant
	for _, g := range r.Groups {
		if len(g.Sizes) == 0 || r.SizeAxis == "" {
			out = append(out, models.ProductVariant{
				Combination: map[string]string{r.ColorAxis: g.Color},
				Price:       g.UnitPrice,
				ImageURL:    g.ThumbnailURL,
			})
			continue
		}
		for _, size := range g.Sizes {
			out = append(out, models.ProductVariant{
				Combination: map[string]string{r.ColorAxis: g.Color, r.SizeAxis: size},
				Price:       g.UnitPrice,
				ImageURL:    g.ThumbnailURL,
			})
		}
	}
	return out
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
