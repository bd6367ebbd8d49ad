package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-importer/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{
		Engine:         EngineChromedp,
		Headless:       false,
		Timeout:        5 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 720,
		AcceptLanguage: "ko-KR,ko;q=0.9",
		Locale:         "ko-KR",
	})

	assert.Equal(t, EngineChromedp, opts.Engine)
	assert.False(t, opts.Headless)
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, "ko-KR,ko;q=0.9", opts.ExtraHeaders["Accept-Language"])
	assert.Equal(t, DefaultOptions().UserAgent, opts.UserAgent)
}

func TestSessionFromConfig(t *testing.T) {
	s, err := SessionFromConfig(config.BrowserConfig{Locale: "zh-CN"})
	require.NoError(t, err)
	assert.Empty(t, s.Cookies)
	assert.Equal(t, "zh-CN", s.Locale)

	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "cookie2", "value": "abc", "domain": ".1688.com", "path": "/"}]`), 0o600))

	s, err = SessionFromConfig(config.BrowserConfig{CookiesFile: path})
	require.NoError(t, err)
	require.Len(t, s.Cookies, 1)
	assert.Equal(t, "cookie2", s.Cookies[0].Name)

	_, err = SessionFromConfig(config.BrowserConfig{CookiesFile: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorContains(t, err, "failed to read cookies")
}
