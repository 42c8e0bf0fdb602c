package engine

import (
	"context"
	"errors"
	"fmt"

	"medicrawl/internal/storage"
	"medicrawl/internal/types"
)

// neighborhoodProbe is how far around a failed anchor ScanRange looks
// for a valid entry before giving up.
const neighborhoodProbe = 100

// ScanRange discovers entries by document id arithmetic: entry ids are
// clustered, so from one known-good anchor the strategy walks down and
// up until classification fails, then sweeps every id in the bracket
// through the pipeline. Holes inside the bracket are skipped, not
// treated as boundaries.
func (e *Engine) ScanRange(ctx context.Context, anchor int64) error {
	anchor, err := e.validateAnchor(ctx, anchor)
	if err != nil {
		return err
	}
	e.logger.Info("anchor validated", "doc_id", anchor)

	lo, err := e.walkBoundary(ctx, anchor, -1)
	if err != nil {
		return err
	}
	hi, err := e.walkBoundary(ctx, anchor, +1)
	if err != nil {
		return err
	}
	e.logger.Info("scan range resolved", "lo", lo, "hi", hi, "ids", hi-lo+1)

	for id := lo; id <= hi; id++ {
		if err := ctx.Err(); err != nil {
			e.finalCheckpoint(storage.Checkpoint{Strategy: "scan", DocID: id})
			return err
		}
		if e.limitReached() {
			e.logger.Info("item limit reached, stopping scan", "doc_id", id)
			e.finalCheckpoint(storage.Checkpoint{Strategy: "scan", DocID: id})
			return nil
		}

		url := e.entryURL(id)
		if exists, err := e.store.URLExists(ctx, url); err == nil && exists {
			e.stats.Skipped.Add(1)
			continue
		}

		// Invalid ids inside the bracket are expected; the pipeline
		// counts and moves on.
		e.ProcessURL(ctx, url)
		e.checkpointEvery(storage.Checkpoint{Strategy: "scan", DocID: id})
		if err := e.fetcher.Pace(ctx); err != nil {
			e.finalCheckpoint(storage.Checkpoint{Strategy: "scan", DocID: id})
			return err
		}
	}
	return nil
}

// validateAnchor confirms the anchor id is a live entry, probing the
// ±neighborhoodProbe ids around it when it is not.
func (e *Engine) validateAnchor(ctx context.Context, anchor int64) (int64, error) {
	ok, err := e.isEntry(ctx, anchor)
	if err != nil {
		return 0, err
	}
	if ok {
		return anchor, nil
	}

	e.logger.Warn("anchor invalid, probing neighborhood", "doc_id", anchor)
	for offset := int64(1); offset <= neighborhoodProbe; offset++ {
		for _, candidate := range []int64{anchor + offset, anchor - offset} {
			if candidate <= 0 {
				continue
			}
			ok, err := e.isEntry(ctx, candidate)
			if err != nil {
				return 0, err
			}
			if ok {
				return candidate, nil
			}
			if err := e.fetcher.Pace(ctx); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("no valid entry within ±%d of anchor %d", neighborhoodProbe, anchor)
}

// walkBoundary steps from the anchor in one direction until
// classification fails, returning the last valid id. The walk is bounded
// by max_scan_range so a pathological site layout cannot run away.
func (e *Engine) walkBoundary(ctx context.Context, anchor int64, step int64) (int64, error) {
	last := anchor
	for i := 0; i < e.cfg.Crawl.MaxScanRange; i++ {
		next := last + step
		if next <= 0 {
			break
		}
		ok, err := e.isEntry(ctx, next)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		last = next
		if err := e.fetcher.Pace(ctx); err != nil {
			return 0, err
		}
	}
	return last, nil
}

// isEntry fetches and classifies one id without persisting anything.
// A 404 or a failed classification is a clean "no"; cancellation
// propagates.
func (e *Engine) isEntry(ctx context.Context, docID int64) (bool, error) {
	url := e.entryURL(docID)
	doc, err := e.fetcher.FetchDocument(ctx, url)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		e.logger.Debug("probe fetch failed", "url", url, "error", err)
		return false, nil
	}
	return e.classifier.IsMedicinePage(doc, url), nil
}
