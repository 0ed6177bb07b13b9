package ingest

import (
	"mime"
	"strings"
)

var mimeExtensions = map[string]string{
	"image/bmp":     ".bmp",
	"image/gif":     ".gif",
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/svg+xml": ".svg",
	"image/tiff":    ".tif",
	"image/webp":    ".webp",
}

// ExtensionForMIME maps a supported image MIME type to a file extension.
func ExtensionForMIME(mimeType string) (string, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mediaType = parsed
	}
	ext, ok := mimeExtensions[mediaType]
	return ext, ok
}
