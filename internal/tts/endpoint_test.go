package tts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty uses default host",
			input:    "",
			expected: "https://api.siliconflow.cn/v1/audio/speech",
		},
		{
			name:     "whitespace only uses default host",
			input:    "   ",
			expected: "https://api.siliconflow.cn/v1/audio/speech",
		},
		{
			name:     "bare host gets scheme and path",
			input:    "api.siliconflow.cn",
			expected: "https://api.siliconflow.cn/v1/audio/speech",
		},
		{
			name:     "single trailing slash is stripped",
			input:    "https://example.com/",
			expected: "https://example.com/v1/audio/speech",
		},
		{
			name:     "full endpoint is left unchanged",
			input:    "https://example.com/v1/audio/speech",
			expected: "https://example.com/v1/audio/speech",
		},
		{
			name:     "full endpoint with trailing slash",
			input:    "https://example.com/v1/audio/speech/",
			expected: "https://example.com/v1/audio/speech",
		},
		{
			name:     "plain http is kept",
			input:    "http://localhost:9000",
			expected: "http://localhost:9000/v1/audio/speech",
		},
		{
			name:     "scheme check is case insensitive",
			input:    "HTTPS://example.com",
			expected: "HTTPS://example.com/v1/audio/speech",
		},
		{
			name:     "host starting with http is not a scheme",
			input:    "httpbin.org",
			expected: "https://httpbin.org/v1/audio/speech",
		},
		{
			name:     "shorter audio suffix still gets the full path",
			input:    "https://proxy.local/audio/speech",
			expected: "https://proxy.local/audio/speech/v1/audio/speech",
		},
		{
			name:     "only one trailing slash is stripped",
			input:    "https://example.com//",
			expected: "https://example.com//v1/audio/speech",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeBaseURL(tt.input))
		})
	}
}

func TestNormalizeBaseURL_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.OneOf(
			rapid.String(),
			rapid.StringMatching(`(https?://)?[a-z0-9.-]{0,20}(:[0-9]{1,5})?(/v1)?(/audio/speech)?/?`),
		).Draw(t, "raw")

		once := NormalizeBaseURL(raw)
		twice := NormalizeBaseURL(once)
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
		if !strings.HasSuffix(once, EndpointPath) {
			t.Fatalf("missing endpoint path: %q", once)
		}
		if !hasHTTPScheme(once) {
			t.Fatalf("missing scheme: %q", once)
		}
	})
}
