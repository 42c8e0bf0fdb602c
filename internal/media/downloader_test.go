package media

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"medicrawl/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeFetcher serves canned bodies keyed by URL.
type fakeFetcher struct {
	body        []byte
	contentType string
	err         error
	calls       int
}

func (f *fakeFetcher) FetchBytes(context.Context, string) ([]byte, string, error) {
	f.calls++
	return f.body, f.contentType, f.err
}

func testRecord() *types.Record {
	return &types.Record{
		KoreanName: "타이레놀정500밀리그램",
		ImageURL:   "https://dbscthumb.phinf.naver.net/medi/tylenol500.jpg",
	}
}

func TestDownloadWritesImage(t *testing.T) {
	dir := t.TempDir()
	ff := &fakeFetcher{body: []byte("\xff\xd8\xff fake jpeg"), contentType: "image/jpeg"}
	d, err := NewDownloader(dir, ff, testLogger)
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}

	path, err := d.Download(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path %q not under %q", path, dir)
	}
	if !strings.Contains(filepath.Base(path), "타이레놀정500밀리그램") {
		t.Fatalf("filename %q missing record slug", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "\xff\xd8\xff fake jpeg" {
		t.Fatalf("stored body mismatch: %v", err)
	}
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	ff := &fakeFetcher{body: []byte("img"), contentType: "image/jpeg"}
	d, _ := NewDownloader(dir, ff, testLogger)

	rec := testRecord()
	first, err := d.Download(context.Background(), rec)
	if err != nil {
		t.Fatalf("first download: %v", err)
	}
	second, err := d.Download(context.Background(), rec)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if first != second {
		t.Fatalf("paths differ: %q vs %q", first, second)
	}
	if ff.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1 (existing file reused)", ff.calls)
	}
}

func TestDownloadRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	ff := &fakeFetcher{body: []byte("<html>error page</html>"), contentType: "text/html"}
	d, _ := NewDownloader(dir, ff, testLogger)

	if _, err := d.Download(context.Background(), testRecord()); err == nil {
		t.Fatal("non-image response must fail")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no file should be written, found %d", len(entries))
	}
}

func TestDownloadNoImageURL(t *testing.T) {
	d, _ := NewDownloader(t.TempDir(), &fakeFetcher{}, testLogger)
	rec := &types.Record{KoreanName: "게보린정"}
	path, err := d.Download(context.Background(), rec)
	if err != nil || path != "" {
		t.Fatalf("path=%q err=%v, want empty/nil", path, err)
	}
}

func TestDownloadPropagatesFetchError(t *testing.T) {
	ff := &fakeFetcher{err: errors.New("connection refused")}
	d, _ := NewDownloader(t.TempDir(), ff, testLogger)
	if _, err := d.Download(context.Background(), testRecord()); err == nil {
		t.Fatal("fetch error must propagate")
	}
}
