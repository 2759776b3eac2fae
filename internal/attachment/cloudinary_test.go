package attachment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCloudinary(t *testing.T, handler http.Handler) *Cloudinary {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewCloudinary(CloudinaryOptions{
		CloudName:        "demo",
		APIKey:           "key",
		APISecret:        "secret",
		BaseURL:          srv.URL,
		Folder:           "evidencias",
		BootstrapFolders: []string{"evidencias", "perfiles"},
		Timeout:          5 * time.Second,
	})
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	c.newID = func() string { return "fixed-id" }
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSign(t *testing.T) {
	// Reference value from the Cloudinary signing documentation.
	got := Sign(map[string]string{
		"eager":     "w_400,h_300,c_pad|w_260,h_200,c_crop",
		"public_id": "sample_image",
		"timestamp": "1315060510",
	}, "abcd")
	assert.Equal(t, "bfd09f95f331f558cbd1320e67aa8d488770583e", got)
}

func TestSign_SkipsEmptyValues(t *testing.T) {
	a := Sign(map[string]string{"timestamp": "1", "folder": ""}, "s")
	b := Sign(map[string]string{"timestamp": "1"}, "s")
	assert.Equal(t, a, b)
}

func TestCloudinaryUpload_PDF(t *testing.T) {
	c := newTestCloudinary(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1_1/demo/raw/upload", r.URL.Path)

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "evidencias", r.FormValue("folder"))
		assert.Equal(t, "evidencias", r.FormValue("tags"))
		assert.Equal(t, "fixed-id.pdf", r.FormValue("public_id"))
		assert.Equal(t, "public", r.FormValue("access_mode"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))

		want := Sign(map[string]string{
			"access_mode": "public",
			"folder":      "evidencias",
			"public_id":   "fixed-id.pdf",
			"tags":        "evidencias",
			"timestamp":   "1700000000",
		}, "secret")
		assert.Equal(t, want, r.FormValue("signature"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, pdfBytes, body)
		assert.Equal(t, "kardex.pdf", header.Filename)

		writeJSON(w, http.StatusOK, map[string]any{
			"public_id":     "evidencias/fixed-id.pdf",
			"secure_url":    "https://res.cloudinary.com/demo/raw/upload/v1/evidencias/fixed-id.pdf",
			"resource_type": "raw",
			"bytes":         len(pdfBytes),
		})
	}))

	stored, err := c.Upload(context.Background(), File{Name: "kardex.pdf", ContentType: "application/pdf", Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, "evidencias/fixed-id.pdf", stored.PublicID)
	assert.Equal(t, "raw", stored.ResourceType)
	assert.Equal(t, "https://res.cloudinary.com/demo/raw/upload/v1/evidencias/fixed-id.pdf", stored.ViewURL)
	assert.Equal(t, "https://res.cloudinary.com/demo/raw/upload/fl_attachment:kardex.pdf/v1/evidencias/fixed-id.pdf", stored.DownloadURL)
	assert.Equal(t, "kardex.pdf", stored.DisplayName)
}

func TestCloudinaryUpload_ImageUsesImageResource(t *testing.T) {
	c := newTestCloudinary(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/image/upload", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "fixed-id", r.FormValue("public_id"))
		assert.Empty(t, r.FormValue("access_mode"))

		writeJSON(w, http.StatusOK, map[string]any{
			"public_id":     "evidencias/fixed-id",
			"secure_url":    "https://res.cloudinary.com/demo/image/upload/v1/evidencias/fixed-id.png",
			"resource_type": "image",
		})
	}))

	stored, err := c.Upload(context.Background(), File{Name: "foto.png", ContentType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/v1/evidencias/fixed-id.png", stored.ViewURL)
}

func TestCloudinaryUpload_APIError(t *testing.T) {
	c := newTestCloudinary(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]string{"message": "Invalid Signature"},
		})
	}))

	_, err := c.Upload(context.Background(), File{Name: "a.pdf", ContentType: "application/pdf", Data: pdfBytes})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid Signature")
}

func TestCloudinaryUpload_MissingURL(t *testing.T) {
	c := newTestCloudinary(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"public_id": "x"})
	}))

	_, err := c.Upload(context.Background(), File{Name: "a.pdf", ContentType: "application/pdf", Data: pdfBytes})
	assert.Error(t, err)
}

func TestCloudinaryBootstrap(t *testing.T) {
	var mu sync.Mutex
	var paths []string

	c := newTestCloudinary(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if r.URL.Path == "/v1_1/demo/resources/raw/upload/update_access_mode" {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "public", r.FormValue("access_mode"))
			assert.Equal(t, "evidencias", r.FormValue("tag"))
		}
		// Second folder already exists.
		if r.URL.Path == "/v1_1/demo/folders/perfiles" {
			writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]string{"message": "exists"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))

	require.NoError(t, c.Bootstrap(context.Background()))
	assert.Equal(t, []string{
		"/v1_1/demo/folders/evidencias",
		"/v1_1/demo/folders/perfiles",
		"/v1_1/demo/resources/raw/upload/update_access_mode",
	}, paths)
}

func TestCloudinaryBootstrap_ReportsFailures(t *testing.T) {
	c := newTestCloudinary(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"message": "boom"}})
	}))

	err := c.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidencias")
	assert.Contains(t, err.Error(), "perfiles")
	assert.Contains(t, err.Error(), "access mode")
}
