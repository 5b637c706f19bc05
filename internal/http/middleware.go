package http

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rubberband-os/rubberband/internal/auth"
)

type contextKey string

const (
	clientIPContextKey  contextKey = "client_ip"
	userAgentContextKey contextKey = "user_agent"
)

// maxUserAgentLength caps the user agent stored with a session.
const maxUserAgentLength = 512

// ExtractClientIP returns the client address of the request, or "" when none parses as an IP.
// Forwarding headers are only honoured when trustProxy is set.
func ExtractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parseIP(host)
}

func parseIP(s string) string {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

// ClientIPFromContext extracts the client IP from the request context.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// SessionMetadataFromContext returns the audit metadata recorded by ClientIPMiddleware.
func SessionMetadataFromContext(ctx context.Context) auth.SessionMetadata {
	ua, _ := ctx.Value(userAgentContextKey).(string)
	return auth.SessionMetadata{
		UserAgent: ua,
		IPAddress: ClientIPFromContext(ctx),
	}
}

// ClientIPMiddleware stores the client IP and user agent in the request context
// so they can be recorded on new sessions.
func ClientIPMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			if len(ua) > maxUserAgentLength {
				ua = ua[:maxUserAgentLength]
			}

			ctx := context.WithValue(r.Context(), clientIPContextKey, ExtractClientIP(r, trustProxy))
			ctx = context.WithValue(ctx, userAgentContextKey, ua)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
