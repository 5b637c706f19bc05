package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP_forwardedHeaders(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		realIP   string
		expected string
	}{
		{
			name:     "single IP",
			xff:      "192.168.1.1",
			expected: "192.168.1.1",
		},
		{
			name:     "multiple IPs (take first)",
			xff:      "203.0.113.1, 198.51.100.1",
			expected: "203.0.113.1",
		},
		{
			name:     "extra spaces are trimmed",
			xff:      "  203.0.113.1  ,  198.51.100.1",
			expected: "203.0.113.1",
		},
		{
			name:     "X-Forwarded-For takes precedence",
			xff:      "203.0.113.1",
			realIP:   "192.168.1.100",
			expected: "203.0.113.1",
		},
		{
			name:     "X-Real-IP used when X-Forwarded-For is garbage",
			xff:      "unknown",
			realIP:   "192.168.1.100",
			expected: "192.168.1.100",
		},
		{
			name:     "garbage falls back to remote addr",
			xff:      "not-an-ip",
			expected: "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Forwarded-For", tt.xff)
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			require.Equal(t, tt.expected, ExtractClientIP(r, true))
		})
	}
}

func TestExtractClientIP_untrustedProxyIgnoresHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4444"
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	r.Header.Set("X-Real-IP", "192.168.1.100")

	require.Equal(t, "10.0.0.5", ExtractClientIP(r, false))
}

func TestExtractClientIP_remoteAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		expected   string
	}{
		{name: "IPv4 with port", remoteAddr: "192.168.1.1:54321", expected: "192.168.1.1"},
		{name: "IPv6 with port", remoteAddr: "[2001:db8::1]:8080", expected: "2001:db8::1"},
		{name: "IPv4 mapped IPv6", remoteAddr: "[::ffff:192.168.1.1]:8080", expected: "192.168.1.1"},
		{name: "no port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
		{name: "not an address", remoteAddr: "pipe", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr

			require.Equal(t, tt.expected, ExtractClientIP(r, false))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var meta auth.SessionMetadata
	handler := ClientIPMiddleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = SessionMetadataFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "198.51.100.7:1234"
	r.Header.Set("User-Agent", "rubberband-cli/"+strings.Repeat("x", 600))
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.Equal(t, "198.51.100.7", meta.IPAddress)
	require.Len(t, meta.UserAgent, maxUserAgentLength)
}
