package translate

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var placeholderNames = []string{
	"name unavailable",
	"unknown",
	"unknown product",
	"untitled",
	"no name",
	"n/a",
	"null",
	"none",
	"product",
	"translation failed",
	"상품",
	"제품",
	"상품명 없음",
	"이름 없음",
	"알 수 없음",
	"번역 실패",
}

// StripSourceScript folds full-width forms to their normal width, removes
// Han characters and CJK punctuation, and collapses whitespace.
func StripSourceScript(s string) string {
	folded := width.Fold.String(s)
	stripped := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Han, r) || (r >= 0x3000 && r <= 0x303F) {
			return ' '
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(stripped), " ")
}

// HasSourceScript reports whether s still contains Han characters.
func HasSourceScript(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether name is a stand-in rather than a real
// product name.
func IsPlaceholder(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return true
	}
	n = strings.Trim(n, ".!?-_ ()[]\"'")
	for _, p := range placeholderNames {
		if n == p {
			return true
		}
	}
	return strings.Contains(n, "unavailable") || strings.Contains(n, "translation failed")
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func cleanList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := StripSourceScript(item)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
