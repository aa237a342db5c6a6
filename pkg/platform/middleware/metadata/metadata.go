package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"magbot/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services. The parsed
// client kind is recorded on audit events.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua)
		ctx = requestcontext.WithClientKind(ctx, ClientKind(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientKind classifies a User-Agent string. Command line clients such as
// registryctl or curl are named by product; browser strings become
// "browser/os" and crawlers "bot".
func ClientKind(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return "unknown"
	}
	if !strings.HasPrefix(ua, "Mozilla/") {
		product := ua
		if idx := strings.IndexAny(product, "/ "); idx != -1 {
			product = product[:idx]
		}
		return strings.ToLower(product)
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	name, _ := parsed.Browser()
	if name == "" {
		return "browser"
	}
	return strings.ToLower(name + "/" + parsed.OS())
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// Check X-Forwarded-For header first (standard for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP which is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header (used by nginx and other proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port", or "[::1]:port" for IPv6
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
