package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// MaxBodySize is the largest response body accepted.
const MaxBodySize = 10 << 20

type Fetcher struct {
	httpClient *http.Client
	parser     *Parser
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, parser *Parser, userAgent string, timeout time.Duration) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Fetch issues one GET for source and parses the response. Failures are
// *FetchError or *ParseError.
func (f *Fetcher) Fetch(ctx context.Context, source Source) (*RawFeed, error) {
	data, contentType, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	kind := Classify(contentType)
	slog.Debug("Feed fetched", "url", source.URL, "content_type", contentType, "kind", kind.String(), "bytes", len(data))

	raw, err := f.parser.Run(data, kind)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	return raw, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxBodySize {
		return nil, "", fmt.Errorf("response body exceeds limit of %d bytes", MaxBodySize)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
