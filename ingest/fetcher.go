package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"imgdrop/common"
)

// Blob is fetched image bytes plus the MIME type the server reported.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Fetcher downloads an image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Blob, error)
}

// HTTPFetcher fetches images over HTTP with a size limit.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewHTTPFetcher creates a fetcher. Redirects are followed at most five times.
func NewHTTPFetcher(timeout time.Duration, userAgent string, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch retrieves url and returns its body and media type.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.Wrap(common.KindTransport, "fetch", "create request", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, common.Wrap(common.KindTransport, "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, common.New(common.KindTransport, "fetch",
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, common.Wrap(common.KindTransport, "fetch", "read body", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, common.New(common.KindTransport, "fetch",
			fmt.Sprintf("content too large (exceeds %d bytes)", f.maxBytes))
	}

	return &Blob{
		Data:     body,
		MIMEType: mediaType(resp.Header.Get("Content-Type")),
	}, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
