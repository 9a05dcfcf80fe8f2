package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"accolade/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and a condensed User-Agent from the
// request and adds them to the context for handlers, services and audit.
// Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(),
			ClientIPFromRequest(r),
			SummarizeUserAgent(r.Header.Get("User-Agent")),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SummarizeUserAgent condenses a raw User-Agent into "browser version (os)",
// flagging bots. Unparseable values are returned trimmed.
func SummarizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	var b strings.Builder
	b.WriteString(name)
	if version != "" {
		b.WriteString(" " + version)
	}
	if os := ua.OS(); os != "" {
		b.WriteString(" (" + os + ")")
	}
	if ua.Bot() {
		b.WriteString(" [bot]")
	}
	return b.String()
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Leftmost entry is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
