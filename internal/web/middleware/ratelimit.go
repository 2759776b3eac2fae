package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/JonMunkholm/formulations/internal/logging"
)

// RateLimit allows perMinute requests per client address. It should run
// after TrustedRealIP so proxied clients are counted separately.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	return RateLimitWith(limiter.New(memory.NewStore(), limiter.Rate{
		Period: time.Minute,
		Limit:  int64(perMinute),
	}))
}

// RateLimitWith uses a caller-supplied limiter.
func RateLimitWith(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lc, err := l.Get(r.Context(), clientKey(r))
			if err != nil {
				// Fail open.
				logging.FromContext(r.Context()).Error("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

			if lc.Reached {
				retry := max(lc.Reset-time.Now().Unix(), 1)
				h.Set("Retry-After", strconv.FormatInt(retry, 10))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":  "Demasiadas solicitudes. Intenta más tarde.",
					"codigo": "RATE001",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
