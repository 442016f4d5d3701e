package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrTooLarge is returned when a download exceeds the size cap
var ErrTooLarge = errors.New("download exceeds size limit")

// DownloadError reports a failed fetch of a source url
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Fetcher downloads documents over HTTP with a size cap
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a fetcher. maxBytes <= 0 disables the cap.
func NewFetcher(maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 5 * time.Minute},
		maxBytes: maxBytes,
	}
}

// NewFetcherWithClient creates a fetcher using client
func NewFetcherWithClient(client *http.Client, maxBytes int64) *Fetcher {
	f := NewFetcher(maxBytes)
	if client != nil {
		f.client = client
	}
	return f
}

// Fetch downloads rawURL. The source name is the last path segment,
// or the host when the path is empty.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Source, error) {
	src, err := f.fetch(ctx, rawURL)
	if err != nil {
		return nil, &DownloadError{URL: redact(rawURL), Err: err}
	}
	return src, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	return &Source{Name: nameFromURL(u), SourceURL: u.String(), Data: data}, nil
}

func nameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return u.Host
	}
	return base
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.Redacted()
}
