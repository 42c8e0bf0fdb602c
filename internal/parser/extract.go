package parser

import (
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"medicrawl/internal/types"
)

// Extractor builds a flat Record from a page that already passed
// classification. Extraction runs in independent phases (names, profile,
// sections, image); a failing phase never prevents the others from running.
type Extractor struct {
	base   *url.URL // origin for resolving relative image URLs
	logger *slog.Logger
}

// NewExtractor creates an extractor resolving relative URLs against baseURL.
func NewExtractor(baseURL string, logger *slog.Logger) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		base:   base,
		logger: logger.With("component", "extractor"),
	}, nil
}

// Extract pulls a record out of the parsed page. It returns
// ErrNotMedicinePage when the content container cannot be located under
// any fallback selector, and ErrEmptyRecord when no phase yielded a
// single field beyond the URL.
func (e *Extractor) Extract(doc *goquery.Document, rawURL string) (*types.Record, error) {
	container := findContainer(doc)
	if container == nil {
		return nil, &types.ParseError{URL: rawURL, Phase: "container", Err: types.ErrNotMedicinePage}
	}

	rec := &types.Record{URL: rawURL}

	e.extractNames(doc, rec)
	e.runPhase("profile", rawURL, container, profileStrategies, rec)
	e.runPhase("sections", rawURL, container, sectionStrategies, rec)
	e.runPhase("image", rawURL, container, imageStrategies, rec)

	if rec.ImageURL != "" {
		rec.ImageURL = e.resolveURL(rec.ImageURL)
	}

	if rec.FieldCount() == 0 {
		return nil, &types.ParseError{URL: rawURL, Phase: "all", Err: types.ErrEmptyRecord}
	}

	rec.DataHash = rec.Fingerprint()

	e.logger.Debug("record extracted",
		"url", rawURL,
		"name", rec.KoreanName,
		"fields", rec.FieldCount(),
	)

	return rec, nil
}

// extractNames fills the Korean (required) and English (optional) names
// from the fixed heading elements.
func (e *Extractor) extractNames(doc *goquery.Document, rec *types.Record) {
	for _, sel := range headwordSelectors {
		if name := CleanText(doc.Find(sel).First().Text()); name != "" {
			rec.KoreanName = name
			break
		}
	}
	if english := CleanText(doc.Find("span.word_txt").First().Text()); english != "" {
		rec.EnglishName = english
	}
}

// runPhase tries each strategy in order until one yields data. A panic in
// a strategy (malformed DOM edge cases) is confined to that phase: it is
// logged and the phase simply yields nothing.
func (e *Extractor) runPhase(phase, rawURL string, container *goquery.Selection, strategies []phaseStrategy, rec *types.Record) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("extraction phase panicked",
				"phase", phase,
				"url", rawURL,
				"panic", r,
			)
		}
	}()

	for _, strategy := range strategies {
		patch := strategy(container)
		if len(patch) == 0 {
			continue
		}
		rec.Apply(patch)
		return
	}
}

// resolveURL makes a possibly-relative URL absolute against the site origin.
func (e *Extractor) resolveURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return e.base.ResolveReference(u).String()
}
