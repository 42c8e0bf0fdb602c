package parser

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"medicrawl/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const entryURL = "https://terms.naver.com/entry.naver?docId=2134746&cid=51000&categoryId=51000"

// Three fixtures for the same conceptual page across site revisions.
// The classifier must accept all three and the extractor must produce
// field-equivalent records from all three.

const newLayoutHTML = `<!DOCTYPE html>
<html>
<head><title>타이레놀정500밀리그램 - 의약품사전</title></head>
<body>
<div class="headword_title">
  <h2 class="headword">타이레놀정500밀리그램</h2>
  <span class="word_txt">Tylenol Tab. 500mg</span>
  <p class="cite"><a href="#">의약품사전</a></p>
</div>
<div id="size_ct" class="size_ct_v2">
  <div class="profile_wrap">
    <dl>
      <dt>분류</dt><dd>해열진통제</dd>
      <dt>업체명</dt><dd>한국얀센</dd>
    </dl>
  </div>
  <div class="section">
    <h3>효능효과</h3>
    <div class="content">감기로 인한 발열 및 동통, 두통, 신경통</div>
  </div>
  <div class="section">
    <h3>용법용량</h3>
    <div class="content">1회 1~2정, 1일 3~4회 복용</div>
  </div>
  <img class="type_img" src="/imgs/tylenol500.jpg">
</div>
</body>
</html>`

const midLayoutHTML = `<!DOCTYPE html>
<html>
<head><title>타이레놀정500밀리그램 - 의약품사전</title></head>
<body>
<h2 class="headword">타이레놀정500밀리그램</h2>
<span class="word_txt">Tylenol Tab. 500mg</span>
<p class="cite">의약품사전</p>
<div id="size_ct">
  <div class="tmp_profile">
    <dt>분류</dt><dd>해열진통제</dd>
    <dt>업체명</dt><dd>한국얀센</dd>
  </div>
  <div class="section">
    <h3>효능효과</h3>
    <p class="txt">감기로 인한 발열 및 동통, 두통, 신경통</p>
  </div>
  <div class="section">
    <h3>용법용량</h3>
    <p class="txt">1회 1~2정, 1일 3~4회 복용</p>
  </div>
  <div class="img_box"><img src="/imgs/tylenol500.jpg"></div>
</div>
</body>
</html>`

const oldLayoutHTML = `<!DOCTYPE html>
<html>
<head>
  <title>타이레놀정500밀리그램</title>
  <meta name="description" content="의약품 타이레놀정500밀리그램 정보">
</head>
<body>
<div class="section_wrap">
  <div class="headword_title"><h2 class="headword">타이레놀정500밀리그램</h2></div>
  <span class="word_txt">Tylenol Tab. 500mg</span>
  <div class="profile_info">
    <dt>분류</dt><dd>해열진통제</dd>
    <dt>업체명</dt><dd>한국얀센</dd>
  </div>
  <div class="detail_section">
    <h3>효능효과</h3>
    <div class="txt">감기로 인한 발열 및 동통, 두통, 신경통</div>
  </div>
  <div class="detail_section">
    <h3>용법용량</h3>
    <div class="txt">1회 1~2정, 1일 3~4회 복용</div>
  </div>
  <img src="/imgs/tylenol500.jpg">
</div>
</body>
</html>`

func makeDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func newTestClassifier() *Classifier {
	return NewClassifier("terms.naver.com", "/entry.naver", "51000", testLogger)
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor("https://terms.naver.com", testLogger)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return e
}

// --- Classifier tests ---

func TestClassifierAcceptsAllLayouts(t *testing.T) {
	c := newTestClassifier()
	for name, html := range map[string]string{
		"new": newLayoutHTML,
		"mid": midLayoutHTML,
		"old": oldLayoutHTML,
	} {
		if !c.IsMedicinePage(makeDoc(t, html), entryURL) {
			t.Errorf("%s layout rejected", name)
		}
	}
}

func TestClassifierURLGate(t *testing.T) {
	c := newTestClassifier()
	doc := makeDoc(t, newLayoutHTML)

	badURLs := []string{
		"https://terms.naver.com/entry.naver?docId=1&cid=44412", // wrong category
		"https://terms.naver.com/list.naver?cid=51000",          // wrong path
		"https://example.com/entry.naver?cid=51000",             // wrong host
	}
	for _, u := range badURLs {
		if c.IsMedicinePage(doc, u) {
			t.Errorf("URL %q must be rejected by the pattern gate", u)
		}
	}
}

func TestClassifierRejectsRedirectPage(t *testing.T) {
	c := newTestClassifier()
	// A redirect/error page renders no headword element.
	doc := makeDoc(t, `<html><head><title>네이버 지식백과</title></head><body><p>이동 중...</p></body></html>`)
	if c.IsMedicinePage(doc, entryURL) {
		t.Fatal("page without headword must be rejected")
	}
}

func TestClassifierRejectsUnrelatedEntry(t *testing.T) {
	c := newTestClassifier()
	doc := makeDoc(t, `<html><body>
<h2 class="headword">백과사전 항목</h2>
<p class="cite">문화유산사전</p>
<div id="size_ct"><div class="section"><h3>개요</h3></div></div>
</body></html>`)
	if c.IsMedicinePage(doc, entryURL) {
		t.Fatal("entry without medicine dictionary keyword must be rejected")
	}
}

func TestClassifierMetaFallback(t *testing.T) {
	c := newTestClassifier()
	// No cite element at all; keyword only present in a meta tag.
	doc := makeDoc(t, oldLayoutHTML)
	if !c.IsMedicinePage(doc, entryURL) {
		t.Fatal("meta-tag keyword fallback must accept the page")
	}
}

func TestClassifierMalformedHTML(t *testing.T) {
	c := newTestClassifier()
	doc := makeDoc(t, `<div><<p>>broken<`)
	// Must not panic; malformed markup is just a rejection.
	if c.IsMedicinePage(doc, entryURL) {
		t.Fatal("malformed page must be rejected")
	}
}

// --- Extractor tests ---

func TestExtractorFieldEquivalentAcrossLayouts(t *testing.T) {
	e := newTestExtractor(t)

	var records []*types.Record
	for name, html := range map[string]string{
		"new": newLayoutHTML,
		"mid": midLayoutHTML,
		"old": oldLayoutHTML,
	} {
		rec, err := e.Extract(makeDoc(t, html), entryURL)
		if err != nil {
			t.Fatalf("%s layout: extract: %v", name, err)
		}
		if rec.KoreanName != "타이레놀정500밀리그램" {
			t.Errorf("%s layout: korean_name = %q", name, rec.KoreanName)
		}
		if rec.EnglishName != "Tylenol Tab. 500mg" {
			t.Errorf("%s layout: english_name = %q", name, rec.EnglishName)
		}
		if rec.Category != "해열진통제" {
			t.Errorf("%s layout: category = %q", name, rec.Category)
		}
		if rec.Company != "한국얀센" {
			t.Errorf("%s layout: company = %q", name, rec.Company)
		}
		if rec.Efficacy != "감기로 인한 발열 및 동통, 두통, 신경통" {
			t.Errorf("%s layout: efficacy = %q", name, rec.Efficacy)
		}
		if rec.Dosage != "1회 1~2정, 1일 3~4회 복용" {
			t.Errorf("%s layout: dosage = %q", name, rec.Dosage)
		}
		if rec.ImageURL != "https://terms.naver.com/imgs/tylenol500.jpg" {
			t.Errorf("%s layout: image_url = %q (must be absolute)", name, rec.ImageURL)
		}
		records = append(records, rec)
	}

	// Field-equivalent records must share a fingerprint.
	for i := 1; i < len(records); i++ {
		if records[i].DataHash != records[0].DataHash {
			t.Errorf("layout records disagree on data hash: %s vs %s", records[i].DataHash, records[0].DataHash)
		}
	}
}

func TestExtractorProfileLabelContainment(t *testing.T) {
	e := newTestExtractor(t)
	doc := makeDoc(t, `<html><body>
<h2 class="headword">판피린큐액</h2>
<div id="size_ct">
  <div class="tmp_profile">
    <dt>분류</dt><dd>해열진통제</dd>
    <dt>제조 업체명</dt><dd>동아제약</dd>
  </div>
</div>
</body></html>`)

	rec, err := e.Extract(doc, entryURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.Category != "해열진통제" {
		t.Fatalf("category = %q, want 해열진통제", rec.Category)
	}
	// Substring containment: a longer label containing 업체명 still maps.
	if rec.Company != "동아제약" {
		t.Fatalf("company = %q, want 동아제약", rec.Company)
	}
}

func TestExtractorNoContainer(t *testing.T) {
	e := newTestExtractor(t)
	doc := makeDoc(t, `<html><body><h2 class="headword">제목만</h2></body></html>`)
	if _, err := e.Extract(doc, entryURL); err == nil {
		t.Fatal("extract without container must fail")
	}
}

func TestExtractorBareRecordRejected(t *testing.T) {
	e := newTestExtractor(t)
	doc := makeDoc(t, `<html><body><div id="size_ct"><p>내용 없음</p></div></body></html>`)
	if _, err := e.Extract(doc, entryURL); err == nil {
		t.Fatal("extraction yielding no fields must fail")
	}
}

func TestCleanText(t *testing.T) {
	in := "  감기로 인한\n\t발열   및 동통  "
	want := "감기로 인한 발열 및 동통"
	if got := CleanText(in); got != want {
		t.Fatalf("CleanText(%q) = %q, want %q", in, got, want)
	}
}
