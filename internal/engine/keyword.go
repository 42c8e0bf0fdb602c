package engine

import (
	"context"
	"errors"
	"strings"

	"medicrawl/internal/storage"
	"medicrawl/internal/types"
)

// DefaultKeywords returns the seed keyword list used when the caller
// supplies none: Korean initial consonants, the Latin alphabet, and
// common drug categories and manufacturers. Broad single-character
// queries fan out over most of the dictionary.
func DefaultKeywords() []string {
	keywords := []string{
		"가", "나", "다", "라", "마", "바", "사", "아", "자", "차", "카", "타", "파", "하",
	}
	for c := 'a'; c <= 'z'; c++ {
		keywords = append(keywords, string(c))
	}
	keywords = append(keywords,
		"정", "캡슐", "시럽", "주사", "연고", "크림", "패치",
		"항생제", "해열진통제", "소화제", "항히스타민제", "혈압강하제", "당뇨병용제",
		"동아제약", "유한양행", "녹십자", "한미약품", "종근당", "대웅제약", "일동제약",
	)
	return keywords
}

// CrawlKeywords walks the keyword list through the search API, feeding
// every result link into the pipeline. Completed keywords are skipped
// and finished ones durably marked; quota exhaustion stops the run
// cleanly with a final checkpoint.
func (e *Engine) CrawlKeywords(ctx context.Context, keywords []string, resume *storage.Checkpoint) error {
	startIndex, startPage := 0, 1
	if resume != nil && resume.Strategy == "keyword" {
		startIndex, startPage = resume.KeywordIndex, resume.Page
		if startPage < 1 {
			startPage = 1
		}
		e.logger.Info("resuming keyword crawl",
			"keyword", resume.Keyword, "index", startIndex, "page", startPage)
	}

	for i := startIndex; i < len(keywords); i++ {
		kw := keywords[i]
		if e.completed.Done(kw) {
			continue
		}

		firstPage := 1
		if i == startIndex {
			firstPage = startPage
		}

		page, err := e.crawlKeyword(ctx, kw, i, firstPage)
		if errors.Is(err, types.ErrQuotaExhausted) {
			e.logger.Info("daily quota exhausted, stopping keyword crawl", "keyword", kw)
			e.finalCheckpoint(storage.Checkpoint{Strategy: "keyword", Keyword: kw, KeywordIndex: i, Page: page})
			return err
		}
		if errors.Is(err, errItemLimit) {
			e.logger.Info("item limit reached, stopping keyword crawl", "keyword", kw)
			e.finalCheckpoint(storage.Checkpoint{Strategy: "keyword", Keyword: kw, KeywordIndex: i, Page: page})
			return nil
		}
		if err != nil {
			// Cancellation or another abort condition.
			e.finalCheckpoint(storage.Checkpoint{Strategy: "keyword", Keyword: kw, KeywordIndex: i, Page: page})
			return err
		}

		if err := e.completed.MarkDone(kw); err != nil {
			e.logger.Warn("keyword completion not recorded", "keyword", kw, "error", err)
		}
	}
	return nil
}

// crawlKeyword pages through one keyword's results, returning the page
// it stopped on so that an abort checkpoint resumes there rather than
// re-walking pages already processed. The returned error is nil on
// normal completion; ErrQuotaExhausted and context errors abort the
// whole strategy.
func (e *Engine) crawlKeyword(ctx context.Context, keyword string, index, startPage int) (int, error) {
	pageSize := e.cfg.Crawl.PageSize
	maxPages := e.cfg.Crawl.MaxPagesPerKeyword

	// Probe for the result count before committing to pagination.
	probe, err := e.search.Search(ctx, keyword, 1, 1)
	if err != nil {
		if errors.Is(err, types.ErrQuotaExhausted) || errors.Is(err, context.Canceled) {
			return startPage, err
		}
		e.logger.Warn("keyword probe failed", "keyword", keyword, "error", err)
		return startPage, nil
	}
	if probe.Total == 0 {
		e.logger.Debug("keyword has no results", "keyword", keyword)
		return startPage, nil
	}
	e.logger.Info("keyword crawl started", "keyword", keyword, "total", probe.Total)

	page := startPage
	for ; page <= maxPages; page++ {
		start := (page-1)*pageSize + 1
		if start > probe.Total {
			break
		}

		result, err := e.search.Search(ctx, keyword, start, pageSize)
		if err != nil {
			if errors.Is(err, types.ErrQuotaExhausted) || errors.Is(err, context.Canceled) {
				return page, err
			}
			e.logger.Warn("search page failed", "keyword", keyword, "page", page, "error", err)
			break
		}

		for _, item := range result.Items {
			if err := ctx.Err(); err != nil {
				return page, err
			}
			if e.limitReached() {
				return page, errItemLimit
			}
			if !e.isEntryLink(item.Link) {
				continue
			}
			if exists, err := e.store.URLExists(ctx, item.Link); err == nil && exists {
				e.stats.Skipped.Add(1)
				continue
			}

			e.ProcessURL(ctx, item.Link)
			e.checkpointEvery(storage.Checkpoint{
				Strategy: "keyword", Keyword: keyword, KeywordIndex: index, Page: page,
			})
			if err := e.fetcher.Pace(ctx); err != nil {
				return page, err
			}
		}

		if len(result.Items) < pageSize {
			break
		}
	}
	return page, nil
}

// isEntryLink filters search hits down to medicine dictionary entries.
func (e *Engine) isEntryLink(link string) bool {
	return strings.Contains(link, e.cfg.Site.EntryPath) &&
		strings.Contains(link, "cid="+e.cfg.Site.CategoryID)
}
