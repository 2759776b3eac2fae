package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/formulations/internal/core"
)

// clientMetadata stores the caller's address and user agent for the
// submission log. RemoteAddr has already been resolved by TrustedRealIP.
func clientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := core.WithClient(r.Context(), ip, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
