package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"medicrawl/internal/config"
	"medicrawl/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Fetcher.MaxRetries = 3
	cfg.Fetcher.RetryDelay = time.Millisecond
	cfg.Fetcher.BackoffFactor = 1.0
	cfg.Fetcher.RequestDelay = 0
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config) *Fetcher {
	t.Helper()
	f, err := New(cfg, testLogger)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFetchNotFoundNeverRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, testConfig())
	_, err := f.FetchDocument(context.Background(), srv.URL+"/entry")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1 (404 is definitive)", hits)
	}
}

func TestFetchServerErrorRetriedToMax(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	f := newTestFetcher(t, cfg)
	_, err := f.FetchDocument(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if hits != cfg.Fetcher.MaxRetries {
		t.Fatalf("hits = %d, want %d", hits, cfg.Fetcher.MaxRetries)
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusInternalServerError {
		t.Fatalf("err = %v, want FetchError with status 500", err)
	}
}

func TestFetchTimeoutRetriedToMax(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Fetcher.PageTimeout = 25 * time.Millisecond
	f := newTestFetcher(t, cfg)
	_, err := f.FetchDocument(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if got := hits.Load(); got != int32(cfg.Fetcher.MaxRetries) {
		t.Fatalf("hits = %d, want %d (client timeout is transient)", got, cfg.Fetcher.MaxRetries)
	}
}

func TestFetchCallerCancelNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := newTestFetcher(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	_, err := f.FetchDocument(ctx, srv.URL)
	if err == nil {
		t.Fatal("want error")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("hits = %d, want 1 (caller gave up)", got)
	}
}

func TestFetchRecoversAfterTransientError(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "temporarily down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><h1>ok</h1></body></html>`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, testConfig())
	doc, err := f.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := doc.Find("h1").Text(); got != "ok" {
		t.Fatalf("h1 = %q, want ok", got)
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
}

func TestFetchRedirectSurfacesLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://terms.naver.com/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, testConfig())
	_, err := f.FetchDocument(context.Background(), srv.URL)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if fe.Location != "https://terms.naver.com/elsewhere" {
		t.Fatalf("Location = %q", fe.Location)
	}
	if fe.Retryable {
		t.Fatal("redirect must not be retryable")
	}
}

func TestFetchGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`<html><body><p id="x">압축된 본문</p></body></html>`))
		gz.Close()
	}))
	defer srv.Close()

	f := newTestFetcher(t, testConfig())
	doc, err := f.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := doc.Find("p#x").Text(); got != "압축된 본문" {
		t.Fatalf("body = %q", got)
	}
}

func TestFetchEUCKRBody(t *testing.T) {
	// "의약품사전" encoded in EUC-KR.
	title := []byte{0xc0, 0xc7, 0xbe, 0xe0, 0xc7, 0xb0, 0xbb, 0xe7, 0xc0, 0xfc}
	var page []byte
	page = append(page, []byte(`<html><body><h2 class="headword">`)...)
	page = append(page, title...)
	page = append(page, []byte(`</h2></body></html>`)...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		w.Write(page)
	}))
	defer srv.Close()

	f := newTestFetcher(t, testConfig())
	doc, err := f.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := doc.Find("h2.headword").Text(); got != "의약품사전" {
		t.Fatalf("headword = %q, want 의약품사전", got)
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Fatalf("got %v, want 7s", got)
	}
	if got := parseRetryAfter("999"); got != 120*time.Second {
		t.Fatalf("got %v, want cap at 120s", got)
	}
	if got := parseRetryAfter(""); got != 5*time.Second {
		t.Fatalf("got %v, want 5s default", got)
	}
}

func TestRandomDelayBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := RandomDelay(base)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("delay %v outside ±25%% of %v", d, base)
		}
	}
	if RandomDelay(0) != 0 {
		t.Fatal("zero base must yield zero delay")
	}
}

func TestRetryStopsOnQuotaExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testLogger, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 1}, "op", func() error {
		calls++
		return types.ErrQuotaExhausted
	})
	if !errors.Is(err, types.ErrQuotaExhausted) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (quota exhaustion is definitive)", calls)
	}
}
