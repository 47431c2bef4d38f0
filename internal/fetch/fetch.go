// Package fetch downloads a web article and extracts its readable text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// maxBody bounds how much of a page is read.
const maxBody = 10 << 20

var (
	ErrInvalidURL = errors.New("invalid article url")
	// ErrNoContent means the page was fetched but held no extractable text.
	ErrNoContent = errors.New("no extractable article content")
)

// HTTPError is a non-success answer from the article host.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("article host returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Article is the readable content of a page.
type Article struct {
	URL   string
	Title string
	Text  string
}

// Fetcher fetches articles over HTTP.
type Fetcher struct {
	client *http.Client
}

// New creates a fetcher with the given request timeout.
func New(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads rawURL and extracts the article.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Article, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", "statstutor/1.0 (article analysis)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", parsedURL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBody), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, ErrNoContent
	}
	return &Article{
		URL:   parsedURL.String(),
		Title: strings.TrimSpace(article.Title),
		Text:  text,
	}, nil
}
