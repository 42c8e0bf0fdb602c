package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"medicrawl/internal/types"
)

// quotaSpy implements Quota with canned behavior and call counting.
type quotaSpy struct {
	allowErr error
	allows   int
	records  int
}

func (q *quotaSpy) Allow(context.Context) error  { q.allows++; return q.allowErr }
func (q *quotaSpy) Record(context.Context) error { q.records++; return nil }

func searchTestClient(srvURL string, quota Quota) *SearchClient {
	cfg := testConfig()
	cfg.API.Endpoint = srvURL
	cfg.API.ClientID = "test-id"
	cfg.API.ClientSecret = "test-secret"
	return NewSearchClient(cfg, quota, testLogger)
}

func TestSearchQuotaGateBlocksNetwork(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	quota := &quotaSpy{allowErr: types.ErrQuotaExhausted}
	c := searchTestClient(srv.URL, quota)

	_, err := c.Search(context.Background(), "타이레놀", 1, 100)
	if !errors.Is(err, types.ErrQuotaExhausted) {
		t.Fatalf("err = %v, want ErrQuotaExhausted", err)
	}
	if hits != 0 {
		t.Fatalf("server hits = %d, want 0 (gate runs before network)", hits)
	}
	if quota.records != 0 {
		t.Fatalf("records = %d, want 0 (no call was made)", quota.records)
	}
}

func TestSearchRecordsEachCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Naver-Client-Id") != "test-id" {
			t.Errorf("missing client id header")
		}
		if got := r.URL.Query().Get("query"); got != "타이레놀" {
			t.Errorf("query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"total": 2,
			"start": 1,
			"display": 100,
			"items": [
				{"title": "<b>타이레놀</b>정500밀리그램", "link": "https://terms.naver.com/entry.naver?docId=1&cid=51000", "description": "해열<b>진통</b>제"},
				{"title": "타이레놀콜드-에스정", "link": "https://terms.naver.com/entry.naver?docId=2&cid=51000", "description": ""}
			]
		}`))
	}))
	defer srv.Close()

	quota := &quotaSpy{}
	c := searchTestClient(srv.URL, quota)

	result, err := c.Search(context.Background(), "타이레놀", 1, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 2 || len(result.Items) != 2 {
		t.Fatalf("total=%d items=%d", result.Total, len(result.Items))
	}
	if result.Items[0].Title != "타이레놀정500밀리그램" {
		t.Fatalf("highlight markup not stripped: %q", result.Items[0].Title)
	}
	if result.Items[0].Description != "해열진통제" {
		t.Fatalf("description markup not stripped: %q", result.Items[0].Description)
	}
	if quota.allows != 1 || quota.records != 1 {
		t.Fatalf("allows=%d records=%d, want 1/1", quota.allows, quota.records)
	}
}

func TestSearchRetriedCallConsumesQuotaAgain(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"total": 0, "start": 1, "display": 100, "items": []}`))
	}))
	defer srv.Close()

	quota := &quotaSpy{}
	c := searchTestClient(srv.URL, quota)

	if _, err := c.Search(context.Background(), "아스피린", 1, 100); err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
	if quota.records != 2 {
		t.Fatalf("records = %d, want 2 (every sent request is billed)", quota.records)
	}
}

func TestSearchClampsDisplay(t *testing.T) {
	var gotDisplay string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDisplay = r.URL.Query().Get("display")
		w.Write([]byte(`{"total": 0, "start": 1, "display": 100, "items": []}`))
	}))
	defer srv.Close()

	c := searchTestClient(srv.URL, &quotaSpy{})
	if _, err := c.Search(context.Background(), "아스피린", 1, 500); err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotDisplay != "100" {
		t.Fatalf("display = %q, want clamped to 100", gotDisplay)
	}
}

func TestSearchAuthFailureNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, `{"errorCode":"024"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := searchTestClient(srv.URL, &quotaSpy{})
	_, err := c.Search(context.Background(), "아스피린", 1, 100)
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want FetchError with 401", err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1 (auth failure is definitive)", hits)
	}
}

var _ Quota = (*quotaSpy)(nil)
