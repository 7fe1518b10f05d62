package tts

import "strings"

// NormalizeBaseURL turns a user supplied base URL into the full speech endpoint URL.
//
// An empty value falls back to DefaultBaseURL. A missing scheme becomes https://,
// one trailing slash is dropped and EndpointPath is appended unless the URL
// already ends with it. Applying it twice yields the same result.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		u = DefaultBaseURL
	}

	if !hasHTTPScheme(u) {
		u = "https://" + u
	}

	u = strings.TrimSuffix(u, "/")

	if !strings.HasSuffix(u, EndpointPath) {
		u += EndpointPath
	}
	return u
}

func hasHTTPScheme(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}
