// Package engine orchestrates the crawl: a shared per-URL pipeline
// (fetch, classify, extract, validate, persist, side effects) driven by
// one of three discovery strategies. Everything runs sequentially; the
// site is paced, not hammered.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"medicrawl/internal/config"
	"medicrawl/internal/fetcher"
	"medicrawl/internal/parser"
	"medicrawl/internal/storage"
	"medicrawl/internal/types"
)

// DocumentFetcher retrieves and parses entry pages. Satisfied by
// fetcher.Fetcher.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error)
	Pace(ctx context.Context) error
}

// Searcher queries the keyed search API. Satisfied by fetcher.SearchClient.
type Searcher interface {
	Search(ctx context.Context, query string, start, display int) (*fetcher.SearchResult, error)
}

// ImageDownloader saves a record's image locally. Satisfied by
// media.Downloader.
type ImageDownloader interface {
	Download(ctx context.Context, rec *types.Record) (string, error)
}

// Engine wires the pipeline components together.
type Engine struct {
	cfg         *config.Config
	fetcher     DocumentFetcher
	search      Searcher
	classifier  *parser.Classifier
	extractor   *parser.Extractor
	store       *storage.Store
	snapshots   *storage.SnapshotWriter
	images      ImageDownloader
	checkpoints *storage.CheckpointManager
	completed   *storage.CompletedKeywords
	ledger      *storage.FailureLedger
	stats       *Stats
	logger      *slog.Logger
}

// Deps carries the engine's collaborators.
type Deps struct {
	Fetcher     DocumentFetcher
	Search      Searcher
	Classifier  *parser.Classifier
	Extractor   *parser.Extractor
	Store       *storage.Store
	Snapshots   *storage.SnapshotWriter
	Images      ImageDownloader
	Checkpoints *storage.CheckpointManager
	Completed   *storage.CompletedKeywords
	Ledger      *storage.FailureLedger
}

// New creates an engine.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		fetcher:     deps.Fetcher,
		search:      deps.Search,
		classifier:  deps.Classifier,
		extractor:   deps.Extractor,
		store:       deps.Store,
		snapshots:   deps.Snapshots,
		images:      deps.Images,
		checkpoints: deps.Checkpoints,
		completed:   deps.Completed,
		ledger:      deps.Ledger,
		stats:       NewStats(),
		logger:      logger.With("component", "engine"),
	}
}

// Stats exposes the run counters.
func (e *Engine) Stats() *Stats { return e.stats }

// ProcessURL runs one URL through the full pipeline. Failures are
// counted, logged, and recorded in the failure ledger; only the error is
// returned so strategy loops can decide whether to continue.
func (e *Engine) ProcessURL(ctx context.Context, rawURL string) error {
	e.stats.Processed.Add(1)

	doc, err := e.fetcher.FetchDocument(ctx, rawURL)
	if err != nil {
		return e.recordFailure(ctx, rawURL, err)
	}

	if !e.classifier.IsMedicinePage(doc, rawURL) {
		e.stats.Skipped.Add(1)
		e.logger.Debug("not a medicine page", "url", rawURL)
		return types.ErrNotMedicinePage
	}

	rec, err := e.extractor.Extract(doc, rawURL)
	if err != nil {
		return e.recordFailure(ctx, rawURL, err)
	}

	if ok, missing := rec.Validate(); !ok {
		e.stats.Invalid.Add(1)
		e.logger.Warn("record failed validation",
			"url", rawURL,
			"name", rec.KoreanName,
			"missing", fieldNames(missing),
		)
		e.recordLedger(rawURL, "validation failed: no important field among "+strings.Join(fieldNames(missing), ","))
		return types.ErrInvalidRecord
	}

	outcome, err := e.store.Save(ctx, rec)
	if err != nil {
		if errors.Is(err, types.ErrDuplicateHash) {
			// Same content under another URL. A designed outcome.
			e.stats.Duplicates.Add(1)
			e.logger.Info("duplicate content skipped", "url", rawURL, "name", rec.KoreanName)
			return nil
		}
		return e.recordFailure(ctx, rawURL, err)
	}

	switch outcome {
	case storage.OutcomeInserted:
		e.stats.Saved.Add(1)
	case storage.OutcomeUpdated:
		e.stats.Updated.Add(1)
	}
	e.logger.Info("record "+outcome.String(),
		"url", rawURL,
		"name", rec.KoreanName,
		"fields", rec.FieldCount(),
	)

	e.sideEffects(ctx, rec)
	return nil
}

// sideEffects runs the best-effort post-save steps: image download and
// JSON snapshot. Their failures are logged, never propagated.
func (e *Engine) sideEffects(ctx context.Context, rec *types.Record) {
	if e.images != nil && rec.ImageURL != "" && rec.ImagePath == "" {
		path, err := e.images.Download(ctx, rec)
		if err != nil {
			e.logger.Warn("image download failed", "url", rec.ImageURL, "error", err)
		} else if path != "" {
			rec.ImagePath = path
			if err := e.store.SetImagePath(ctx, rec.ID, path); err != nil {
				e.logger.Warn("image path not recorded", "id", rec.ID, "error", err)
			}
		}
	}

	if e.snapshots != nil {
		if err := e.snapshots.Write(rec); err != nil {
			e.logger.Warn("snapshot write failed", "id", rec.ID, "error", err)
		}
	}
}

// recordFailure counts, logs, and ledgers a per-URL failure. 404 and
// redirect responses get their own treatment: they are definitive
// verdicts about the URL, not crawl failures.
func (e *Engine) recordFailure(ctx context.Context, rawURL string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, types.ErrNotFound) {
		e.stats.NotFound.Add(1)
		e.logger.Debug("entry not found", "url", rawURL)
		return err
	}

	var fe *types.FetchError
	if errors.As(err, &fe) && fe.Location != "" {
		e.stats.Skipped.Add(1)
		e.logger.Info("entry moved", "url", rawURL, "location", fe.Location)
		return err
	}

	e.stats.Failed.Add(1)
	e.logger.Error("url processing failed", "url", rawURL, "error", err)
	e.recordLedger(rawURL, err.Error())
	return err
}

func (e *Engine) recordLedger(rawURL, reason string) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Record(rawURL, reason); err != nil {
		e.logger.Warn("failure ledger write failed", "error", err)
	}
}

// checkpointEvery writes a checkpoint when the processed count crosses
// the configured interval.
func (e *Engine) checkpointEvery(cp storage.Checkpoint) {
	interval := int64(e.cfg.Crawl.CheckpointInterval)
	if e.checkpoints == nil || interval <= 0 {
		return
	}
	if e.stats.Processed.Load()%interval != 0 {
		return
	}
	e.fillStats(&cp)
	if err := e.checkpoints.Save(&cp); err != nil {
		e.logger.Warn("checkpoint save failed", "error", err)
	}
}

// finalCheckpoint writes an unconditional checkpoint, used on soft stops
// and cancellation so resume loses nothing.
func (e *Engine) finalCheckpoint(cp storage.Checkpoint) {
	if e.checkpoints == nil {
		return
	}
	e.fillStats(&cp)
	if err := e.checkpoints.Save(&cp); err != nil {
		e.logger.Warn("checkpoint save failed", "error", err)
	}
}

func (e *Engine) fillStats(cp *storage.Checkpoint) {
	cp.Processed = e.stats.Processed.Load()
	cp.Saved = e.stats.Saved.Load()
	cp.Duplicates = e.stats.Duplicates.Load()
	cp.Failed = e.stats.Failed.Load()
}

// errItemLimit stops a strategy loop when the optional item cap is hit.
var errItemLimit = errors.New("item limit reached")

// limitReached reports whether the optional processed-item cap is hit.
func (e *Engine) limitReached() bool {
	limit := int64(e.cfg.Crawl.MaxItems)
	return limit > 0 && e.stats.Processed.Load() >= limit
}

// entryURL builds the canonical entry URL for a document id.
func (e *Engine) entryURL(docID int64) string {
	return fmt.Sprintf("%s%s?docId=%d&cid=%s&categoryId=%s",
		e.cfg.Site.BaseURL, e.cfg.Site.EntryPath, docID,
		e.cfg.Site.CategoryID, e.cfg.Site.CategoryID)
}

func fieldNames(fields []types.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
