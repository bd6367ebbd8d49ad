package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageFilter_Valid(t *testing.T) {
	f := DefaultImageFilter()

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{name: "cdn product image", url: "https://cbu01.alicdn.com/img/ibank/O1CN01abc_!!2200.jpg", expected: true},
		{name: "protocol relative", url: "//cbu01.alicdn.com/img/ibank/2021/123.jpg", expected: true},
		{name: "deny wins over allow", url: "https://cbu01.alicdn.com/img/ibank/icon/cart.png", expected: false},
		{name: "placeholder on cdn", url: "https://img.alicdn.com/imgextra/placeholder.png", expected: false},
		{name: "unknown host", url: "https://example.com/photo.jpg", expected: false},
		{name: "data uri", url: "data:image/png;base64,AAAA", expected: false},
		{name: "empty", url: "  ", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.Valid(tt.url))
		})
	}
}

func TestNormalizeImageURL(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{in: "//cbu01.alicdn.com/img/ibank/a.jpg", expected: "https://cbu01.alicdn.com/img/ibank/a.jpg"},
		{in: "http://cbu01.alicdn.com/img/ibank/a.jpg?x=1#top", expected: "https://cbu01.alicdn.com/img/ibank/a.jpg"},
		{in: "https://cbu01.alicdn.com/img/ibank/a.jpg_400x400.jpg", expected: "https://cbu01.alicdn.com/img/ibank/a.jpg"},
		{in: "https://cbu01.alicdn.com/img/ibank/a.jpg_.webp", expected: "https://cbu01.alicdn.com/img/ibank/a.jpg"},
		{in: "https://cbu01.alicdn.com/img/ibank/a.400x400.jpg", expected: "https://cbu01.alicdn.com/img/ibank/a.jpg"},
		{in: "https://cbu01.alicdn.com/img/ibank/a_50x50.png", expected: "https://cbu01.alicdn.com/img/ibank/a.png"},
		{in: "not a url", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeImageURL(tt.in))
		})
	}
}

func TestImageFilter_CleanDedupsByNormalizedForm(t *testing.T) {
	f := DefaultImageFilter()

	out := f.Clean([]string{
		"//cbu01.alicdn.com/img/ibank/a.jpg_400x400.jpg",
		"https://cbu01.alicdn.com/img/ibank/logo.png",
		"https://cbu01.alicdn.com/img/ibank/b.jpg",
		"https://cbu01.alicdn.com/img/ibank/a.jpg?spm=1",
	})

	assert.Equal(t, []string{
		"https://cbu01.alicdn.com/img/ibank/a.jpg",
		"https://cbu01.alicdn.com/img/ibank/b.jpg",
	}, out)
}
