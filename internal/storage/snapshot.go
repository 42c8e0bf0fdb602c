package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"medicrawl/internal/types"
)

// SnapshotWriter mirrors each saved record to an individual JSON file,
// named {id}_{slug}.json. The files are a human-inspectable export; the
// database remains the source of truth.
type SnapshotWriter struct {
	dir    string
	logger *slog.Logger
}

// NewSnapshotWriter creates a snapshot writer rooted at dir.
func NewSnapshotWriter(dir string, logger *slog.Logger) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotWriter{
		dir:    dir,
		logger: logger.With("component", "snapshot"),
	}, nil
}

// Write saves the record as pretty-printed JSON, atomically (temp file
// plus rename), overwriting any previous snapshot of the same record.
func (w *SnapshotWriter) Write(rec *types.Record) error {
	name := fmt.Sprintf("%d_%s.json", rec.ID, Slugify(rec.KoreanName))
	finalPath := filepath.Join(w.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename snapshot file: %w", err)
	}

	w.logger.Debug("snapshot written", "path", finalPath)
	return nil
}

// Slugify converts a record name into a filesystem-safe file name
// fragment: letters and digits survive, everything else collapses to a
// single underscore, capped at 50 runes.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	runes := 0
	for _, r := range name {
		if runes >= 50 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			runes++
			continue
		}
		if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
			runes++
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "untitled"
	}
	return out
}
