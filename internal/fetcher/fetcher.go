package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"medicrawl/internal/config"
	"medicrawl/internal/types"
)

// Fetcher performs rate-limited HTTP retrieval of entry pages and binary
// assets. All methods are safe for sequential use; the crawler is
// single-threaded and paces itself between calls with Pace.
type Fetcher struct {
	client *http.Client
	cfg    *config.FetcherConfig
	logger *slog.Logger
}

// New creates a page fetcher from the configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decompression handled here, including brotli
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Fetcher.PageTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.Fetcher.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= 5 {
				return fmt.Errorf("max redirects (5) reached")
			}
			return nil
		},
	}

	return &Fetcher{
		client: client,
		cfg:    &cfg.Fetcher,
		logger: logger.With("component", "fetcher"),
	}, nil
}

// Policy returns the retry policy derived from the fetcher configuration.
func (f *Fetcher) Policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: f.cfg.MaxRetries,
		BaseDelay:   f.cfg.RetryDelay,
		Factor:      f.cfg.BackoffFactor,
	}
}

// FetchDocument retrieves an entry page and parses it into a DOM,
// retrying transient failures per the configured policy. Non-UTF-8
// responses are transparently re-decoded from the declared charset.
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := Retry(ctx, f.logger, f.Policy(), "fetch_page", func() error {
		body, contentType, err := f.get(ctx, rawURL)
		if err != nil {
			return err
		}
		reader, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err != nil {
			return &types.FetchError{URL: rawURL, Err: fmt.Errorf("charset detection: %w", err)}
		}
		doc, err = goquery.NewDocumentFromReader(reader)
		if err != nil {
			return &types.FetchError{URL: rawURL, Err: fmt.Errorf("parse html: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FetchBytes retrieves a binary asset (images) with retries, returning
// the body and the Content-Type header.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, string, error) {
	var body []byte
	var contentType string
	err := Retry(ctx, f.logger, f.Policy(), "fetch_bytes", func() error {
		var err error
		body, contentType, err = f.get(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

// get performs a single GET attempt and classifies the outcome.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &types.FetchError{
			URL:       rawURL,
			Err:       err,
			Retryable: isRetryableError(ctx, err),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Definitive: the entry does not exist. Never retried.
		return nil, "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        types.ErrNotFound,
			Retryable:  false,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s)", retryAfter),
			Retryable:  true,
			RetryAfter: retryAfter,
		}

	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Retryable:  true,
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// Redirect following is disabled: surface the target so callers
		// can log where the entry moved.
		return nil, "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d redirect", resp.StatusCode),
			Retryable:  false,
			Location:   resp.Header.Get("Location"),
		}

	case resp.StatusCode != http.StatusOK:
		return nil, "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable:  false,
		}
	}

	var reader io.Reader = resp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}
	reader, err = decompressReader(resp, reader)
	if err != nil {
		return nil, "", &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}

	f.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)

	return body, resp.Header.Get("Content-Type"), nil
}

// Pace sleeps for the configured inter-request delay with jitter,
// returning early if the context is cancelled.
func (f *Fetcher) Pace(ctx context.Context) error {
	return sleepCtx(ctx, RandomDelay(f.cfg.RequestDelay))
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection
// refused. A per-request client timeout also satisfies
// errors.Is(err, context.DeadlineExceeded), so the caller's context is
// the only reliable cancellation signal.
func isRetryableError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	// The caller giving up is definitive.
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second // default back-off
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120 // cap at 2 minutes
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

// RandomDelay returns a random delay around the base duration (±25%).
func RandomDelay(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}
