package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medicrawl/internal/config"
	"medicrawl/internal/types"
)

// Quota gates and counts keyed API calls. Allow returns
// types.ErrQuotaExhausted when the daily ceiling has been reached;
// Record counts one call actually sent to the API.
type Quota interface {
	Allow(ctx context.Context) error
	Record(ctx context.Context) error
}

// SearchItem is one hit from the encyclopedia search API. Title and
// Description arrive with <b> highlight markup already stripped.
type SearchItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}

// SearchResult is one page of search API results.
type SearchResult struct {
	Total   int          `json:"total"`
	Start   int          `json:"start"`
	Display int          `json:"display"`
	Items   []SearchItem `json:"items"`
}

// SearchClient queries the keyed encyclopedia search API. Every call is
// gated by the daily quota before any network traffic and counted after
// the request is actually sent.
type SearchClient struct {
	client *http.Client
	cfg    *config.APIConfig
	quota  Quota
	policy RetryPolicy
	logger *slog.Logger
}

// NewSearchClient creates a search API client.
func NewSearchClient(cfg *config.Config, quota Quota, logger *slog.Logger) *SearchClient {
	return &SearchClient{
		client: &http.Client{Timeout: cfg.Fetcher.APITimeout},
		cfg:    &cfg.API,
		quota:  quota,
		policy: RetryPolicy{
			MaxAttempts: cfg.Fetcher.MaxRetries,
			BaseDelay:   cfg.Fetcher.RetryDelay,
			Factor:      cfg.Fetcher.BackoffFactor,
		},
		logger: logger.With("component", "search_api"),
	}
}

// Search runs one keyed API query, retrying transient failures. The quota
// gate runs before each attempt; a retried attempt consumes quota again
// because the API bills every request it receives.
func (c *SearchClient) Search(ctx context.Context, query string, start, display int) (*SearchResult, error) {
	// The API caps display at 100.
	if display > 100 {
		display = 100
	}
	if display < 1 {
		display = 1
	}

	var result *SearchResult
	err := Retry(ctx, c.logger, c.policy, "api_search", func() error {
		var err error
		result, err = c.search(ctx, query, start, display)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *SearchClient) search(ctx context.Context, query string, start, display int) (*SearchResult, error) {
	if err := c.quota.Allow(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("display", strconv.Itoa(display))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: c.cfg.Endpoint, Err: err, Retryable: false}
	}
	req.Header.Set("X-Naver-Client-Id", c.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", c.cfg.ClientSecret)

	begin := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{
			URL:       c.cfg.Endpoint,
			Err:       err,
			Retryable: isRetryableError(ctx, err),
		}
	}
	defer resp.Body.Close()

	// The API bills the request whether or not it succeeded.
	if err := c.quota.Record(ctx); err != nil {
		c.logger.Warn("quota record failed", "error", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &types.FetchError{
			URL:        c.cfg.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP 429: API rate limited"),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	case resp.StatusCode >= 500:
		return nil, &types.FetchError{
			URL:        c.cfg.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d from search API", resp.StatusCode),
			Retryable:  true,
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.FetchError{
			URL:        c.cfg.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d from search API: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Retryable:  false,
		}
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &types.FetchError{URL: c.cfg.Endpoint, Err: fmt.Errorf("decode response: %w", err), Retryable: false}
	}

	for i := range result.Items {
		result.Items[i].Title = stripHighlight(result.Items[i].Title)
		result.Items[i].Description = stripHighlight(result.Items[i].Description)
	}

	c.logger.Debug("search complete",
		"query", query,
		"start", start,
		"total", result.Total,
		"items", len(result.Items),
		"duration", time.Since(begin),
	)

	return &result, nil
}

// stripHighlight removes the <b> highlight markup the API wraps around
// matched terms, and unescapes HTML entities.
func stripHighlight(s string) string {
	s = strings.ReplaceAll(s, "<b>", "")
	s = strings.ReplaceAll(s, "</b>", "")
	return html.UnescapeString(s)
}
