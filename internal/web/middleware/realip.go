package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP replaces r.RemoteAddr with the client address from
// X-Real-IP or the first X-Forwarded-For hop, but only when the connection
// comes from one of the trusted proxies. Entries may be CIDRs or bare IPs.
// Requests from anywhere else keep their RemoteAddr so clients cannot spoof
// their address past the rate limiter.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	prefixes := parsePrefixes(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if addr, ok := peerAddr(r.RemoteAddr); ok && contains(prefixes, addr) {
				if client, ok := forwardedClient(r.Header); ok {
					r.RemoteAddr = client.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parsePrefixes(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("realip: ignoring invalid trusted proxy", "entry", e)
	}
	return out
}

// peerAddr parses a host:port or bare address.
func peerAddr(remote string) (netip.Addr, bool) {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func forwardedClient(h http.Header) (netip.Addr, bool) {
	candidate := strings.TrimSpace(h.Get("X-Real-IP"))
	if candidate == "" {
		first, _, _ := strings.Cut(h.Get("X-Forwarded-For"), ",")
		candidate = strings.TrimSpace(first)
	}
	if candidate == "" {
		return netip.Addr{}, false
	}
	a, err := netip.ParseAddr(candidate)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func contains(prefixes []netip.Prefix, a netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
