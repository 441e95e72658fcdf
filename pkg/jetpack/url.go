package jetpack

import (
	"net/url"
	"strings"
)

// CleanURL normalizes a user-typed site address: trimmed, lower-cased,
// http:// prefixed when no scheme-like prefix exists, and without trailing slashes.
func CleanURL(input string) string {
	cleaned := strings.ToLower(strings.TrimSpace(input))
	if cleaned != "" && !strings.HasPrefix(cleaned, "http") {
		cleaned = "http://" + cleaned
	}

	return strings.TrimRight(cleaned, "/")
}

// URLToSlug converts a site URL into the path-safe slug used by site routes,
// for example "http://example.com/blog" becomes "example.com::blog".
func URLToSlug(siteURL string) string {
	slug := strings.TrimPrefix(siteURL, "https://")
	slug = strings.TrimPrefix(slug, "http://")

	return strings.ReplaceAll(slug, "/", "::")
}

// AddCalypsoEnvQueryArg appends the calypso_env query argument to target.
// Targets that do not parse as URLs are returned unchanged.
func AddCalypsoEnvQueryArg(target string, envID string) string {
	if envID == "" {
		return target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}
	query := parsed.Query()
	query.Set("calypso_env", envID)
	parsed.RawQuery = query.Encode()

	return parsed.String()
}
