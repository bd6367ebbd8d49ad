package persistence

import (
	"net/url"
	"strings"

	"github.com/maltedev/storefront-importer/internal/extract"
)

const offerKeyPrefix = "offer:"

// CanonicalKey maps every URL form of one item to the same source key. Item
// ids win; otherwise the key is the CanonicalURL.
func CanonicalKey(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if id := extract.OfferIDFromURL(rawURL); id != "" {
		return offerKeyPrefix + id
	}
	return CanonicalURL(rawURL)
}

// CanonicalURL normalizes a URL to https, lower-case host and path without a
// trailing slash. Query and fragment are dropped.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(rawURL, "/")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || scheme == "http" {
		scheme = "https"
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return scheme + "://" + strings.ToLower(u.Host) + path
}
