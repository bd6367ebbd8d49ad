package browser

import (
	"fmt"
	"os"

	"github.com/maltedev/storefront-importer/internal/config"
)

// OptionsFromConfig overlays the configured values on DefaultOptions.
func OptionsFromConfig(c config.BrowserConfig) *Options {
	opts := DefaultOptions()
	opts.Engine = c.Engine
	opts.Headless = c.Headless
	opts.Timeout = c.Timeout
	opts.ViewportWidth = c.ViewportWidth
	opts.ViewportHeight = c.ViewportHeight
	opts.TimezoneID = c.TimezoneID
	opts.Locale = c.Locale
	opts.ProxyServer = c.ProxyServer
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	if c.AcceptLanguage != "" {
		opts.ExtraHeaders["Accept-Language"] = c.AcceptLanguage
	}
	return opts
}

// SessionFromConfig builds the session, reading cookies from CookiesFile
// when one is configured.
func SessionFromConfig(c config.BrowserConfig) (Session, error) {
	session := Session{
		UserAgent: c.UserAgent,
		Locale:    c.Locale,
	}
	if c.CookiesFile == "" {
		return session, nil
	}

	data, err := os.ReadFile(c.CookiesFile)
	if err != nil {
		return session, fmt.Errorf("failed to read cookies: %w", err)
	}
	if session.Cookies, err = LoadCookies(data); err != nil {
		return session, fmt.Errorf("failed to parse cookies: %w", err)
	}
	return session, nil
}
