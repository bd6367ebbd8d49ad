package models

import "strings"

var sizeAxisKeywords = []string{"尺码", "尺寸", "码数", "大小", "规格", "size", "사이즈"}

// IsSizeAxis reports whether an option axis name denotes sizes rather than
// colors or styles.
func IsSizeAxis(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	for _, k := range sizeAxisKeywords {
		if strings.Contains(n, k) {
			return true
		}
	}
	return false
}
