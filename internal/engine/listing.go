package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"medicrawl/internal/storage"
)

// listingSelectors is the ordered chain for locating the result list on
// a listing page. The generic fallbacks cover older markup revisions.
var listingSelectors = []string{
	"div.list_wrap",
	"div#content .list_wrap",
	".list_wrap",
	"ul.content_list",
	"#content ul",
}

// CrawlListing walks the category's paginated listing, feeding every
// entry link into the pipeline. Pages that yield no links are retried
// in a second pass with a doubled delay and an anchors-wide scan; the
// walk stops at the page cap or after two consecutive pages with no new
// links.
func (e *Engine) CrawlListing(ctx context.Context) error {
	seen := map[string]bool{}
	var emptyPages []int
	zeroNew := 0

	for page := 1; page <= e.cfg.Crawl.ListingPageCap; page++ {
		links, err := e.listingLinks(ctx, page, false)
		if err != nil {
			if ctx.Err() != nil {
				e.finalCheckpoint(storage.Checkpoint{Strategy: "listing", Page: page})
				return ctx.Err()
			}
			e.logger.Warn("listing page failed", "page", page, "error", err)
			continue
		}
		if len(links) == 0 {
			emptyPages = append(emptyPages, page)
			e.logger.Warn("listing page yielded no links", "page", page)
			continue
		}

		fresh := 0
		for _, link := range links {
			if seen[link] {
				continue
			}
			seen[link] = true
			fresh++
			if err := e.processListingLink(ctx, link, page); err != nil {
				e.finalCheckpoint(storage.Checkpoint{Strategy: "listing", Page: page})
				if errors.Is(err, errItemLimit) {
					e.logger.Info("item limit reached, stopping listing crawl", "page", page)
					return nil
				}
				return err
			}
		}

		if fresh == 0 {
			zeroNew++
			if zeroNew >= 2 {
				e.logger.Info("no new links on two consecutive pages, stopping", "page", page)
				break
			}
		} else {
			zeroNew = 0
		}
	}

	// Second pass: empty pages may have been transient layouts; rescan
	// them slower and wider.
	for _, page := range emptyPages {
		if err := e.fetcher.Pace(ctx); err != nil {
			return err
		}
		if err := e.fetcher.Pace(ctx); err != nil {
			return err
		}
		links, err := e.listingLinks(ctx, page, true)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("listing retry failed", "page", page, "error", err)
			continue
		}
		for _, link := range links {
			if seen[link] {
				continue
			}
			seen[link] = true
			if err := e.processListingLink(ctx, link, page); err != nil {
				if errors.Is(err, errItemLimit) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

func (e *Engine) processListingLink(ctx context.Context, link string, page int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limitReached() {
		return errItemLimit
	}
	if exists, err := e.store.URLExists(ctx, link); err == nil && exists {
		e.stats.Skipped.Add(1)
		return nil
	}
	e.ProcessURL(ctx, link)
	e.checkpointEvery(storage.Checkpoint{Strategy: "listing", Page: page})
	return e.fetcher.Pace(ctx)
}

// listingLinks fetches one listing page and extracts candidate entry
// links. With wide set, every anchor on the page is considered instead
// of only those inside the recognized list containers.
func (e *Engine) listingLinks(ctx context.Context, page int, wide bool) ([]string, error) {
	pageURL := fmt.Sprintf("%s?page=%d", e.cfg.Site.ListingURL, page)
	doc, err := e.fetcher.FetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	links := extractListingLinks(doc, e.cfg.Site.BaseURL, e.cfg.Site.EntryPath, e.cfg.Site.CategoryID, wide)
	e.logger.Debug("listing page parsed", "page", page, "links", len(links), "wide", wide)
	return links, nil
}

// extractListingLinks pulls entry links out of a listing page: anchored
// on the list container chain (or the whole page when wide), filtered to
// the category's entry links, absolutized, and de-duplicated preserving
// order.
func extractListingLinks(doc *goquery.Document, baseURL, entryPath, categoryID string, wide bool) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var anchors *goquery.Selection
	if wide {
		anchors = doc.Find("a[href]")
	} else {
		for _, sel := range listingSelectors {
			if container := doc.Find(sel).First(); container.Length() > 0 {
				anchors = container.Find("li a[href]")
				if anchors.Length() == 0 {
					anchors = container.Find("a[href]")
				}
				break
			}
		}
		if anchors == nil {
			return nil
		}
	}

	seen := map[string]bool{}
	var out []string
	anchors.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !strings.Contains(abs, entryPath) || !strings.Contains(abs, "cid="+categoryID) {
			return
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})
	return out
}
