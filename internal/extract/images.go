package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// ImageFilter decides which image URLs belong to the item. A URL must
// contain one Allow fragment and no Deny fragment; Deny always wins.
type ImageFilter struct {
	Allow []string
	Deny  []string
}

func DefaultImageFilter() ImageFilter {
	return ImageFilter{
		Allow: []string{
			"alicdn.com/img/ibank",
			"cbu01.alicdn.com",
			"img.alicdn.com/imgextra",
			"img.alicdn.com/bao/uploaded",
			"/ibank/",
		},
		Deny: []string{
			"icon",
			"logo",
			"placeholder",
			"loading",
			"blank.gif",
			"spacer",
			"avatar",
			"sprite",
			"1x1",
			"tps-",
			".gif",
			".svg",
		},
	}
}

func (f ImageFilter) Valid(raw string) bool {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" || strings.HasPrefix(u, "data:") {
		return false
	}
	for _, d := range f.Deny {
		if strings.Contains(u, strings.ToLower(d)) {
			return false
		}
	}
	for _, a := range f.Allow {
		if strings.Contains(u, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// Clean validates, normalizes and de-duplicates urls, keeping the first
// occurrence of every normalized form.
func (f ImageFilter) Clean(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if !f.Valid(raw) {
			continue
		}
		n := NormalizeImageURL(raw)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

var (
	derivedSuffix = regexp.MustCompile(`(?i)\.(jpe?g|png|webp)(?:_[^/]*|\.\d+x\d+\.(?:jpe?g|png|webp))$`)
	sizeSuffix    = regexp.MustCompile(`(?i)_\d+x\d+(?:q\d+)?\.(jpe?g|png|webp)$`)
	dotSizeSuffix = regexp.MustCompile(`(?i)\.\d+x\d+\.(jpe?g|png|webp)$`)
)

// NormalizeImageURL resolves protocol-relative URLs, drops query and
// fragment, and strips the thumbnail suffixes CDNs append to originals.
func NormalizeImageURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	path := derivedSuffix.ReplaceAllString(u.Path, ".$1")
	path = sizeSuffix.ReplaceAllString(path, ".$1")
	path = dotSizeSuffix.ReplaceAllString(path, ".$1")
	u.Path = path
	u.RawPath = ""

	return u.String()
}
