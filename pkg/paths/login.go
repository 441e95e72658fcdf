// Package paths builds application URLs that depend on deployment config.
package paths

import (
	"net/url"
	"strings"
)

// DefaultLoginURL is the hosted login form.
const DefaultLoginURL = "https://wordpress.com/wp-login.php"

// NativeLoginPath is the in-app login route.
const NativeLoginPath = "/log-in"

// LoginConfig holds the deployment settings the login URL depends on.
type LoginConfig struct {
	// LoginURL is the external login form. Empty means DefaultLoginURL.
	LoginURL string `json:"login_url" yaml:"login_url"`
	// WPLoginEnabled turns on the in-app login route for native callers.
	WPLoginEnabled bool `json:"wp_login_enabled" yaml:"wp_login_enabled"`
}

// LoginOptions select the login variant.
type LoginOptions struct {
	IsNative          bool
	Locale            string
	RedirectTo        string
	TwoFactorAuthType string
	SocialConnect     bool
	EmailAddress      string
	SocialService     string
}

// Login returns the login URL for options.
func Login(cfg LoginConfig, options LoginOptions) string {
	target := cfg.LoginURL
	if target == "" {
		target = DefaultLoginURL
	}

	if options.IsNative && cfg.WPLoginEnabled {
		target = NativeLoginPath
		if options.SocialService != "" {
			target += "/" + options.SocialService + "/callback"
		}
		if options.TwoFactorAuthType != "" {
			target += "/" + options.TwoFactorAuthType
		}
		if options.SocialConnect {
			target += "/social-connect"
		}
	}

	if options.Locale != "" && options.Locale != "en" {
		if options.IsNative {
			target = addLocaleToPath(target, options.Locale)
		} else {
			target = addLocaleToWpcomURL(target, options.Locale)
		}
	}

	if options.RedirectTo != "" {
		target = addQueryArg(target, "redirect_to", options.RedirectTo)
	}
	if options.EmailAddress != "" {
		target = addQueryArg(target, "email_address", options.EmailAddress)
	}

	return target
}

// addLocaleToPath appends the locale as the last path segment, keeping the query.
func addLocaleToPath(target string, locale string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/" + locale

	return parsed.String()
}

// addLocaleToWpcomURL moves wordpress.com URLs to the locale subdomain.
func addLocaleToWpcomURL(target string, locale string) string {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host != "wordpress.com" {
		return target
	}
	parsed.Host = locale + "." + parsed.Host

	return parsed.String()
}

func addQueryArg(target string, key string, value string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()

	return parsed.String()
}
