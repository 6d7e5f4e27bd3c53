package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const DefaultMaxDocumentBytes = 8 << 20

// ErrDocumentTooLarge is returned for bodies over the fetcher's byte limit.
// Truncating instead would change the text that documents are deduplicated by.
var ErrDocumentTooLarge = errors.New("document too large")

var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: DefaultConcurrency,
		IdleConnTimeout:     30 * time.Second,
	},
}

// HTTPFetcher downloads documents with a bearer token and decodes them to
// UTF-8 using the encoding declared by, or sniffed from, the response.
type HTTPFetcher struct {
	token    string
	client   *http.Client
	maxBytes int64
}

type FetcherOption func(*HTTPFetcher)

func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithMaxDocumentBytes sets the largest body accepted. Longer documents
// fail with ErrDocumentTooLarge.
func WithMaxDocumentBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func NewHTTPFetcher(token string, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		token:    strings.TrimSpace(token),
		client:   defaultHTTPClient,
		maxBytes: DefaultMaxDocumentBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("%w: %s is over %d bytes", ErrDocumentTooLarge, url, f.maxBytes)
	}

	return decodeText(body, resp.Header.Get("Content-Type"))
}

func decodeText(body []byte, contentType string) (string, error) {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	return string(out), nil
}

type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
