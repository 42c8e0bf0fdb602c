package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Checkpoint is the serializable crawl position, written periodically so
// an interrupted run can resume where it stopped.
type Checkpoint struct {
	Timestamp    time.Time `json:"timestamp"`
	Strategy     string    `json:"strategy"`
	Keyword      string    `json:"keyword,omitempty"`
	KeywordIndex int       `json:"keyword_index,omitempty"`
	Page         int       `json:"page,omitempty"`
	DocID        int64     `json:"doc_id,omitempty"`
	Processed    int64     `json:"processed"`
	Saved        int64     `json:"saved"`
	Duplicates   int64     `json:"duplicates"`
	Failed       int64     `json:"failed"`
}

// CheckpointManager writes timestamped checkpoint files and loads the
// most recent one on resume.
type CheckpointManager struct {
	dir    string
	logger *slog.Logger
}

// NewCheckpointManager creates a checkpoint manager rooted at dir.
func NewCheckpointManager(dir string, logger *slog.Logger) *CheckpointManager {
	return &CheckpointManager{
		dir:    dir,
		logger: logger.With("component", "checkpoint"),
	}
}

// Save writes the checkpoint to a new timestamped file, atomically
// (temp file plus rename).
func (cm *CheckpointManager) Save(cp *Checkpoint) error {
	if err := os.MkdirAll(cm.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	cp.Timestamp = time.Now().UTC()

	name := "checkpoint_" + cp.Timestamp.Format("20060102_150405") + ".json"
	finalPath := filepath.Join(cm.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	cm.logger.Debug("checkpoint saved", "path", finalPath, "processed", cp.Processed)
	return nil
}

// LoadLatest returns the most recent checkpoint, or nil when none exists.
// Timestamped names sort lexically in time order.
func (cm *CheckpointManager) LoadLatest() (*Checkpoint, error) {
	matches, err := filepath.Glob(filepath.Join(cm.dir, "checkpoint_*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint dir: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)
	path := matches[len(matches)-1]

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var cp Checkpoint
	if err := json.NewDecoder(f).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	cm.logger.Info("checkpoint loaded", "path", path, "strategy", cp.Strategy)
	return &cp, nil
}

// CompletedKeywords is the durable set of search keywords whose result
// pages have been fully walked. Completions append to a plain text file,
// one keyword per line, so partial runs never repeat finished keywords.
type CompletedKeywords struct {
	path string
	done map[string]bool
}

// LoadCompletedKeywords reads the completion file, tolerating a missing one.
func LoadCompletedKeywords(path string) (*CompletedKeywords, error) {
	ck := &CompletedKeywords{path: path, done: map[string]bool{}}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ck, nil
		}
		return nil, fmt.Errorf("open completed keywords: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if kw := strings.TrimSpace(sc.Text()); kw != "" {
			ck.done[kw] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read completed keywords: %w", err)
	}
	return ck, nil
}

// Done reports whether the keyword has already been fully processed.
func (ck *CompletedKeywords) Done(keyword string) bool { return ck.done[keyword] }

// Len returns the number of completed keywords.
func (ck *CompletedKeywords) Len() int { return len(ck.done) }

// MarkDone records the keyword durably before returning.
func (ck *CompletedKeywords) MarkDone(keyword string) error {
	if ck.done[keyword] {
		return nil
	}
	if dir := filepath.Dir(ck.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create keywords dir: %w", err)
		}
	}
	f, err := os.OpenFile(ck.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open completed keywords: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(keyword + "\n"); err != nil {
		return fmt.Errorf("append completed keyword: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync completed keywords: %w", err)
	}
	ck.done[keyword] = true
	return nil
}

// FailedURL is one entry of the failure ledger.
type FailedURL struct {
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureLedger streams failed URLs to a JSONL file, one object per
// line, for later inspection or targeted re-crawling.
type FailureLedger struct {
	file   *os.File
	enc    *json.Encoder
	count  int
	logger *slog.Logger
}

// NewFailureLedger opens (appending) the ledger at path.
func NewFailureLedger(path string, logger *slog.Logger) (*FailureLedger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open failure ledger: %w", err)
	}
	return &FailureLedger{
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "failure_ledger"),
	}, nil
}

// Record appends one failure.
func (l *FailureLedger) Record(url, reason string) error {
	entry := FailedURL{URL: url, Reason: reason, Timestamp: time.Now().UTC()}
	if err := l.enc.Encode(entry); err != nil {
		return fmt.Errorf("encode failure entry: %w", err)
	}
	l.count++
	return nil
}

// Close closes the ledger file.
func (l *FailureLedger) Close() error {
	if l.count > 0 {
		l.logger.Info("failures recorded", "path", l.file.Name(), "count", l.count)
	}
	return l.file.Close()
}

// ReadFailedURLs loads every entry of a ledger file, tolerating a
// missing one. Used by targeted re-crawls.
func ReadFailedURLs(path string) ([]FailedURL, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open failure ledger: %w", err)
	}
	defer f.Close()

	var out []FailedURL
	dec := json.NewDecoder(f)
	for dec.More() {
		var entry FailedURL
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode failure entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}
