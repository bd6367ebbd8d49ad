package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/storefront-importer/internal/models"
)

var (
	dimensionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*(?:cm|mm|m)?\s*[x×*]\s*(\d+(?:[,.]\d+)?)\s*(?:cm|mm|m)?\s*[x×*]\s*(\d+(?:[,.]\d+)?)\s*(cm|mm|m|厘米|毫米|米)`),
		regexp.MustCompile(`长\s*[:：]?\s*(\d+(?:\.\d+)?)\s*(?:cm)?\s*[,，\s]*宽\s*[:：]?\s*(\d+(?:\.\d+)?)\s*(?:cm)?\s*[,，\s]*高\s*[:：]?\s*(\d+(?:\.\d+)?)\s*(cm|mm|厘米|毫米)?`),
		regexp.MustCompile(`(?i)(?:size|dimensions?|尺寸|规格)\s*[:：]?\s*(\d+(?:[,.]\d+)?)\s*[x×*]\s*(\d+(?:[,.]\d+)?)\s*[x×*]\s*(\d+(?:[,.]\d+)?)()`),
	}

	weightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:毛重|净重|重量|weight)\s*[:：]?\s*(\d+(?:[,.]\d+)?)\s*(kg|g|公斤|千克|克|斤)`),
		regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*(kg|公斤|千克)`),
		regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*(g|克)(?:[^a-z]|$)`),
	}
)

// ParseWeightKg returns the first weight found in text, converted to
// kilograms, or 0 when none is found.
func ParseWeightKg(text string) float64 {
	for _, pattern := range weightPatterns {
		m := pattern.FindStringSubmatch(text)
		if len(m) < 3 {
			continue
		}
		v := parseFloat(m[1])
		if v <= 0 {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "g", "克":
			return v / 1000
		case "斤":
			return v / 2
		default:
			return v
		}
	}
	return 0
}

// ParseDimensions returns the first length × width × height triple found
// in text, in centimetres. A missing unit is read as centimetres.
func ParseDimensions(text string) *models.Dimensions {
	for _, pattern := range dimensionPatterns {
		m := pattern.FindStringSubmatch(text)
		if len(m) < 5 {
			continue
		}
		factor := unitToCm(m[4])
		d := &models.Dimensions{
			LengthCm: parseFloat(m[1]) * factor,
			WidthCm:  parseFloat(m[2]) * factor,
			HeightCm: parseFloat(m[3]) * factor,
		}
		if d.LengthCm > 0 && d.WidthCm > 0 && d.HeightCm > 0 {
			return d
		}
	}
	return nil
}

// Measurements scans every text in order and keeps the first hit for each
// measurement.
func Measurements(texts ...string) (float64, *models.Dimensions) {
	var weight float64
	var dims *models.Dimensions
	for _, t := range texts {
		if weight == 0 {
			weight = ParseWeightKg(t)
		}
		if dims == nil {
			dims = ParseDimensions(t)
		}
		if weight > 0 && dims != nil {
			break
		}
	}
	return weight, dims
}

func unitToCm(unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "mm", "毫米":
		return 0.1
	case "m", "米":
		return 100
	default:
		return 1
	}
}

func parseFloat(s string) float64 {
	s = strings.Replace(s, ",", ".", -1)
	s = strings.TrimSpace(s)
	val, _ := strconv.ParseFloat(s, 64)
	return val
}
