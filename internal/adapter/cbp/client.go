package cbp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/text"
)

const (
	DefaultBaseURL = "https://rulings.cbp.gov/ruling/"
	maxBodyBytes   = 5 << 20
)

// Client fetches ruling pages from the public rulings site.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

// URL returns the page address for a ruling id.
func (c *Client) URL(id string) string {
	return c.baseURL + id
}

// Fetch downloads and parses the page for id. It returns ruling.ErrNotFound
// for missing rulings and wraps ruling.ErrTransientFetch around anything
// worth retrying.
func (c *Client) Fetch(ctx context.Context, id string) (text.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(id), nil)
	if err != nil {
		return text.Document{}, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return text.Document{}, ctxErr
		}
		return text.Document{}, fmt.Errorf("%w: %v", ruling.ErrTransientFetch, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to close response body", "error", cerr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return text.Document{}, ruling.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return text.Document{}, fmt.Errorf("%w: status %d", ruling.ErrTransientFetch, resp.StatusCode)
	default:
		return text.Document{}, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, id)
	}

	doc, err := ParseHTML(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return text.Document{}, err
		}
		return text.Document{}, fmt.Errorf("%w: read body: %v", ruling.ErrTransientFetch, err)
	}
	return doc, nil
}
