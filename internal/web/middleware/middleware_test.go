package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		keys     []string
		header   string
		want     int
	}{
		{"disabled", false, nil, "", http.StatusNoContent},
		{"missing key", true, []string{"k1"}, "", http.StatusUnauthorized},
		{"wrong key", true, []string{"k1"}, "nope", http.StatusForbidden},
		{"second key matches", true, []string{"k1", "k2"}, "k2", http.StatusNoContent},
		{"no keys configured", true, nil, "k1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/formulation/", nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()

			APIKeyAuth(tt.required, tt.keys)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted peer keeps address",
			trusted: []string{"10.0.0.0/8"},
			remote:  "203.0.113.9:5555",
			headers: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:    "203.0.113.9:5555",
		},
		{
			name:    "trusted proxy real ip",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.1.2.3:5555",
			headers: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:    "1.2.3.4",
		},
		{
			name:    "trusted bare ip forwarded for",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"},
			want:    "5.6.7.8",
		},
		{
			name:    "invalid header ignored",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "127.0.0.1:80",
		},
		{
			name:    "invalid trusted entry skipped",
			trusted: []string{"garbage", ""},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:    "127.0.0.1:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2)(ok)

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, do("192.0.2.1:1001").Code)

	limited := do("192.0.2.1:1002")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "RATE001")

	assert.Equal(t, http.StatusNoContent, do("192.0.2.2:1000").Code, "other clients have their own budget")
}

func TestLoggerPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Logger(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
