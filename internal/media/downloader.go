// Package media downloads medicine package images referenced by records.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"medicrawl/internal/storage"
	"medicrawl/internal/types"
)

// ByteFetcher retrieves a binary asset, returning the body and its
// Content-Type. Satisfied by fetcher.Fetcher.
type ByteFetcher interface {
	FetchBytes(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Downloader saves record images under a flat directory. Failures are
// reported but never block record persistence; an image is decoration,
// not data.
type Downloader struct {
	dir     string
	fetcher ByteFetcher
	logger  *slog.Logger
}

// NewDownloader creates an image downloader writing into dir.
func NewDownloader(dir string, fetcher ByteFetcher, logger *slog.Logger) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Downloader{
		dir:     dir,
		fetcher: fetcher,
		logger:  logger.With("component", "media"),
	}, nil
}

// Download fetches the record's image and returns the local path. A
// record without an image URL yields "" with no error. An already
// downloaded image is reused without refetching.
func (d *Downloader) Download(ctx context.Context, rec *types.Record) (string, error) {
	if rec.ImageURL == "" {
		return "", nil
	}

	localPath := filepath.Join(d.dir, d.filename(rec))
	if _, err := os.Stat(localPath); err == nil {
		d.logger.Debug("image already present", "path", localPath)
		return localPath, nil
	}

	body, contentType, err := d.fetcher.FetchBytes(ctx, rec.ImageURL)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", rec.ImageURL, err)
	}

	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", fmt.Errorf("download image %s: not an image (content-type %q)", rec.ImageURL, contentType)
	}

	tmpPath := localPath + ".tmp"
	if err := os.WriteFile(tmpPath, body, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename image: %w", err)
	}

	d.logger.Debug("image downloaded",
		"url", rec.ImageURL,
		"path", localPath,
		"size", len(body),
	)
	return localPath, nil
}

// filename builds a stable image file name from the URL hash and the
// record name, with the extension taken from the URL path when present.
func (d *Downloader) filename(rec *types.Record) string {
	sum := sha256.Sum256([]byte(rec.ImageURL))
	prefix := hex.EncodeToString(sum[:8])

	ext := ""
	if u, err := url.Parse(rec.ImageURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return prefix + "_" + storage.Slugify(rec.KoreanName) + ext
}
