package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authkit"
)

// ClientIP stores the caller address on the request context for audit events.
// With trustProxy set, the first X-Forwarded-For entry wins over RemoteAddr.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RemoteIP(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(authkit.WithClientIP(r.Context(), ip)))
		})
	}
}

// RemoteIP resolves the caller address for r.
func RemoteIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
