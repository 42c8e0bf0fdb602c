package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// Keyword markers identifying the medicine dictionary category on entry pages.
const (
	dictionaryKeyword = "의약품사전"
	domainKeyword     = "의약품"
)

// containerSelectors is the ordered chain used to locate the main content
// container. The site has changed its markup across revisions, so there is
// no single authoritative selector: structural match first, then without
// the class qualifier, then alternate container names. First hit wins.
var containerSelectors = []string{
	"div#size_ct.size_ct_v2",
	"div#size_ct",
	"div.size_ct_v2",
	"div.section_wrap",
}

// headwordSelectors locates the entry headword (title) element.
var headwordSelectors = []string{
	"h2.headword",
	"div.headword_title h2",
	"h3.headword",
}

// Classifier decides whether a fetched page is a genuine medicine
// dictionary entry, as opposed to a redirect, a disambiguation page, or an
// unrelated encyclopedia entry.
type Classifier struct {
	entryPattern string // URL substring all entry pages share
	categoryGate string // query fragment carrying the category id
	logger       *slog.Logger
}

// NewClassifier creates a classifier for the given site.
func NewClassifier(host, entryPath, categoryID string, logger *slog.Logger) *Classifier {
	return &Classifier{
		entryPattern: host + entryPath,
		categoryGate: "cid=" + categoryID,
		logger:       logger.With("component", "classifier"),
	}
}

// IsMedicinePage reports whether the parsed page is a valid medicine
// dictionary entry. It never panics on malformed HTML; any structural
// anomaly is simply a rejection.
func (c *Classifier) IsMedicinePage(doc *goquery.Document, rawURL string) bool {
	// Cheap URL gate before any DOM work.
	if !strings.Contains(rawURL, c.entryPattern) || !strings.Contains(rawURL, c.categoryGate) {
		c.logger.Debug("url pattern mismatch", "url", rawURL)
		return false
	}

	// A missing headword means the page did not render a dictionary
	// entry (redirect or error page).
	if !hasHeadword(doc) {
		c.logger.Debug("no headword element", "url", rawURL)
		return false
	}

	// Category keyword: cite/caption element first, meta tags as fallback.
	if !c.hasCategoryKeyword(doc) {
		c.logger.Debug("category keyword absent", "url", rawURL)
		return false
	}

	if findContainer(doc) == nil {
		c.logger.Debug("content container absent", "url", rawURL)
		return false
	}

	return true
}

func hasHeadword(doc *goquery.Document) bool {
	for _, sel := range headwordSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// hasCategoryKeyword checks the citation element for the dictionary
// keyword, falling back to an XPath scan over meta tag content for the
// domain keyword.
func (c *Classifier) hasCategoryKeyword(doc *goquery.Document) bool {
	found := false
	doc.Find("p.cite, p.source, cite").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), dictionaryKeyword) {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}

	// Meta fallback: some revisions only carry the keyword in
	// description/keyword meta tags.
	root := doc.Get(0)
	if root == nil {
		return false
	}
	for _, n := range htmlquery.Find(root, "//meta[@content]") {
		if strings.Contains(htmlquery.SelectAttr(n, "content"), domainKeyword) {
			return true
		}
	}
	return false
}

// findContainer returns the main content container selection, trying each
// selector in the fallback chain, or nil when none matches.
func findContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range containerSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}
