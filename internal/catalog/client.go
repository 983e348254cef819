package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rkm/stac-cube/internal/stac"
)

// Client handles communication with a STAC API item-search endpoint.
type Client struct {
	baseURL    string
	maxPages   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new STAC catalog client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxPages: 50,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithMaxPages bounds how many pages FetchAll will follow.
func (c *Client) WithMaxPages(n int) *Client {
	if n > 0 {
		c.maxPages = n
	}
	return c
}

// Search executes one page of an item search via POST /search.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*stac.ItemCollection, error) {
	payload, err := req.encode()
	if err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	searchURL := c.baseURL + "/search"

	c.logger.DebugContext(ctx, "executing catalog search",
		slog.String("url", searchURL),
		slog.Int("limit", req.Limit),
	)

	return c.post(ctx, searchURL, payload)
}

// FetchAll executes a search and eagerly follows rel=next pagination links,
// collecting every page into one in-memory item slice. Zero matches is a
// valid outcome: an empty slice and a nil error.
func (c *Client) FetchAll(ctx context.Context, req *SearchRequest) ([]*stac.Item, error) {
	page, err := c.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	items := make([]*stac.Item, 0, len(page.Features))
	items = append(items, page.Features...)

	for pages := 1; ; pages++ {
		next := page.NextLink()
		if next == nil || next.Href == "" {
			break
		}
		if pages >= c.maxPages {
			return nil, fmt.Errorf("pagination exceeded %d pages; narrow the search or raise the page bound", c.maxPages)
		}

		href, err := c.resolveHref(next.Href)
		if err != nil {
			return nil, fmt.Errorf("invalid next link %q: %w", next.Href, err)
		}

		c.logger.DebugContext(ctx, "following pagination link",
			slog.String("href", href),
			slog.Int("page", pages+1),
		)

		page, err = c.get(ctx, href)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", pages+1, err)
		}
		items = append(items, page.Features...)
	}

	c.logger.DebugContext(ctx, "catalog search completed",
		slog.Int("item_count", len(items)),
	)

	return items, nil
}

// MatchedCount returns the total number of items matching the search,
// using a single-item probe request and the catalog's reported match count.
func (c *Client) MatchedCount(ctx context.Context, req *SearchRequest) (int, error) {
	page, err := c.Search(ctx, req.withLimit(1))
	if err != nil {
		return 0, err
	}

	matched, ok := page.Matched()
	if !ok {
		return 0, fmt.Errorf("catalog did not report a match count")
	}
	return matched, nil
}

// post issues a POST request with a JSON search body.
func (c *Client) post(ctx context.Context, searchURL string, payload []byte) (*stac.ItemCollection, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json")
	httpReq.Header.Set("User-Agent", "stac-cube/1.0")

	return c.do(ctx, httpReq)
}

// get issues a GET request against a pagination link.
func (c *Client) get(ctx context.Context, href string) (*stac.ItemCollection, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/geo+json")
	httpReq.Header.Set("User-Agent", "stac-cube/1.0")

	return c.do(ctx, httpReq)
}

func (c *Client) do(ctx context.Context, httpReq *http.Request) (*stac.ItemCollection, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "catalog request failed",
			slog.String("error", err.Error()),
			slog.String("url", httpReq.URL.String()),
		)
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "catalog returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result stac.ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode catalog response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	return &result, nil
}

// resolveHref resolves possibly-relative pagination hrefs against the base URL.
func (c *Client) resolveHref(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return href, nil
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}
