package attachment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrEmptyFile is returned for a zero-length upload.
	ErrEmptyFile = errors.New("attachment is empty")

	// ErrTooLarge is returned when the upload exceeds the configured limit.
	ErrTooLarge = errors.New("attachment too large")

	// ErrUnsupportedType is returned for anything other than a PDF or an image.
	ErrUnsupportedType = errors.New("unsupported attachment type")
)

// File is a document received from a client, already checked by Inspect.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the length of the file in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Inspect checks the size of data and sniffs its media type.
// The declared client content type is ignored; only PDFs and images pass.
func Inspect(name string, data []byte, maxSize int64) (File, error) {
	if len(data) == 0 {
		return File{}, ErrEmptyFile
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return File{}, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), maxSize)
	}

	contentType := detectMIME(data)
	if !allowed(contentType) {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	return File{Name: name, ContentType: contentType, Data: data}, nil
}

// detectMIME returns the sniffed media type without parameters.
func detectMIME(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

func allowed(contentType string) bool {
	return contentType == "application/pdf" || IsImage(contentType)
}
