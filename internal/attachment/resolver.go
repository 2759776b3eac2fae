// Package attachment handles the optional document uploaded with a
// submission: content checks, storage in Cloudinary and the URLs used to
// view or download it afterwards.
package attachment

import (
	"regexp"
	"strings"
)

// DefaultDisplayName is used when neither the client nor the store supplied a filename.
const DefaultDisplayName = "document.pdf"

// URLs are the presentation links of a stored document.
type URLs struct {
	ViewURL     string `json:"viewUrl"`
	DownloadURL string `json:"downloadUrl"`
	DisplayName string `json:"displayName"`
}

var (
	// attachmentFlag matches a delivery flag segment such as /fl_attachment:false/.
	attachmentFlag = regexp.MustCompile(`/fl_attachment(:[^/]*)?/`)
	unsafeNameChar = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// ResolveURLs derives the view and download URLs of a document from the
// secure URL returned by the object store.
//
// Non-image documents are served from the raw resource path. The download
// URL carries an fl_attachment flag so browsers save the file under its
// original name. Any flag already present is replaced, so feeding a
// resolved URL back in returns the same URLs.
func ResolveURLs(secureURL, originalName, contentType string) URLs {
	name := originalName
	if strings.TrimSpace(name) == "" {
		name = DefaultDisplayName
	}

	u := secureURL
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	for attachmentFlag.MatchString(u) {
		u = attachmentFlag.ReplaceAllString(u, "/")
	}

	if !IsImage(contentType) {
		u = strings.Replace(u, "/image/upload/", "/raw/upload/", 1)
	}

	return URLs{
		ViewURL:     u,
		DownloadURL: strings.Replace(u, "/upload/", "/upload/fl_attachment:"+SafeName(name)+"/", 1),
		DisplayName: name,
	}
}

// SafeName replaces every character outside [a-zA-Z0-9._-] with '_'.
func SafeName(name string) string {
	return unsafeNameChar.ReplaceAllString(name, "_")
}

// IsImage reports whether contentType is an image media type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
