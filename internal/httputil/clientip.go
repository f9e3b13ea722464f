package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address for a request, preferring
// proxy-forwarded headers over the socket peer. X-Forwarded-For may carry a
// chain; the first hop is the client.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
