package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/formulations/internal/logging"
)

// APIKeyAuth protects administrative routes with the X-API-Key header.
// When required is false every request passes. When required is true and
// keys is empty every request is rejected.
func APIKeyAuth(required bool, keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			switch {
			case key == "":
				logging.FromContext(r.Context()).Warn("auth: missing api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				deny(w, http.StatusUnauthorized, "Falta la clave de acceso.", "AUTH001")
			case !validKey(key, keys):
				logging.FromContext(r.Context()).Warn("auth: invalid api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				deny(w, http.StatusForbidden, "Clave de acceso inválida.", "AUTH002")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func deny(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "codigo": code})
}

// validKey compares key against every configured key in constant time.
func validKey(key string, keys []string) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}
