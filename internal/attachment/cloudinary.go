package attachment

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Resource types understood by the upload API.
const (
	ResourceImage = "image"
	ResourceRaw   = "raw"
)

// CloudinaryOptions configures the Cloudinary client.
type CloudinaryOptions struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string // e.g. https://api.cloudinary.com; overridden in tests

	// Folder receives every uploaded document and is also used as its tag.
	Folder string

	// BootstrapFolders are created by Bootstrap if missing.
	BootstrapFolders []string

	Timeout time.Duration
}

// Stored describes a document after upload.
type Stored struct {
	URLs
	PublicID     string
	ResourceType string
	Bytes        int64
}

// Cloudinary uploads documents through the Cloudinary REST API.
type Cloudinary struct {
	client *resty.Client
	opts   CloudinaryOptions
	now    func() time.Time
	newID  func() string
}

// NewCloudinary creates a client. It does not contact the API; call
// Bootstrap once at startup to prepare folders and access rules.
func NewCloudinary(opts CloudinaryOptions) *Cloudinary {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.cloudinary.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Cloudinary{
		client: client,
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

type uploadResponse struct {
	PublicID         string `json:"public_id"`
	SecureURL        string `json:"secure_url"`
	URL              string `json:"url"`
	ResourceType     string `json:"resource_type"`
	Format           string `json:"format"`
	Bytes            int64  `json:"bytes"`
	OriginalFilename string `json:"original_filename"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiError) message(resp *resty.Response) string {
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(resp.String())
}

// Upload stores f with a signed upload request and returns its URLs.
// PDFs and other documents go to the raw resource type, images to image.
func (c *Cloudinary) Upload(ctx context.Context, f File) (Stored, error) {
	resource := ResourceRaw
	if IsImage(f.ContentType) {
		resource = ResourceImage
	}

	publicID := c.newID()
	if resource == ResourceRaw {
		// Raw resources are served by public id, so it carries the extension.
		publicID += documentExt(f)
	}

	params := map[string]string{
		"folder":    c.opts.Folder,
		"public_id": publicID,
		"tags":      c.opts.Folder,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	if resource == ResourceRaw {
		params["access_mode"] = "public"
	}
	for k, v := range params {
		if v == "" {
			delete(params, k)
		}
	}
	params["signature"] = Sign(params, c.opts.APISecret)
	params["api_key"] = c.opts.APIKey

	var out uploadResponse
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(params).
		SetFileReader("file", f.Name, bytes.NewReader(f.Data)).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.path(resource, "upload"))
	if err != nil {
		return Stored{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.IsError() {
		return Stored{}, fmt.Errorf("cloudinary upload: status %d: %s", resp.StatusCode(), apiErr.message(resp))
	}

	secureURL := out.SecureURL
	if secureURL == "" {
		secureURL = out.URL
	}
	if secureURL == "" {
		return Stored{}, errors.New("cloudinary upload: response carries no url")
	}

	name := f.Name
	if name == "" && out.OriginalFilename != "" {
		name = out.OriginalFilename
		if out.Format != "" {
			name += "." + out.Format
		}
	}

	return Stored{
		URLs:         ResolveURLs(secureURL, name, f.ContentType),
		PublicID:     out.PublicID,
		ResourceType: out.ResourceType,
		Bytes:        out.Bytes,
	}, nil
}

// Bootstrap creates the configured folders and makes raw documents tagged
// with the upload folder publicly readable. Every step is attempted; the
// failures are logged and returned joined.
func (c *Cloudinary) Bootstrap(ctx context.Context) error {
	logger := slog.Default().With("component", "cloudinary")
	var errs []error

	for _, folder := range c.opts.BootstrapFolders {
		if err := c.createFolder(ctx, folder); err != nil {
			logger.Warn("create folder failed", "folder", folder, "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Debug("folder ready", "folder", folder)
	}

	if c.opts.Folder != "" {
		if err := c.publishRawByTag(ctx, c.opts.Folder); err != nil {
			logger.Warn("set raw access mode failed", "tag", c.opts.Folder, "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		logger.Info("cloudinary configured", "folders", c.opts.BootstrapFolders)
	}
	return errors.Join(errs...)
}

func (c *Cloudinary) createFolder(ctx context.Context, folder string) error {
	var apiErr apiError
	resp, err := c.admin(ctx).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1_1/%s/folders/%s", c.opts.CloudName, url.PathEscape(folder)))
	if err != nil {
		return fmt.Errorf("create folder %s: %w", folder, err)
	}
	// An existing folder is reported as a conflict by some API versions.
	if resp.IsError() && resp.StatusCode() != http.StatusConflict {
		return fmt.Errorf("create folder %s: status %d: %s", folder, resp.StatusCode(), apiErr.message(resp))
	}
	return nil
}

func (c *Cloudinary) publishRawByTag(ctx context.Context, tag string) error {
	var apiErr apiError
	resp, err := c.admin(ctx).
		SetFormData(map[string]string{"access_mode": "public", "tag": tag}).
		SetError(&apiErr).
		Post(c.path(ResourceRaw, "upload/update_access_mode"))
	if err != nil {
		return fmt.Errorf("update access mode for tag %s: %w", tag, err)
	}
	if resp.IsError() {
		return fmt.Errorf("update access mode for tag %s: status %d: %s", tag, resp.StatusCode(), apiErr.message(resp))
	}
	return nil
}

// admin returns a request authenticated for the Admin API.
func (c *Cloudinary) admin(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.opts.APIKey, c.opts.APISecret)
}

func (c *Cloudinary) path(resource, action string) string {
	if action == "upload" {
		return fmt.Sprintf("/v1_1/%s/%s/upload", c.opts.CloudName, resource)
	}
	return fmt.Sprintf("/v1_1/%s/resources/%s/%s", c.opts.CloudName, resource, action)
}

// Sign computes the upload signature: the parameters sorted by name,
// joined as k=v pairs with '&', followed by the API secret, SHA-1 hex encoded.
// Empty values are left out.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func documentExt(f File) string {
	if ext := strings.ToLower(filepath.Ext(f.Name)); ext != "" && SafeName(ext) == ext {
		return ext
	}
	if f.ContentType == "application/pdf" {
		return ".pdf"
	}
	return ""
}
