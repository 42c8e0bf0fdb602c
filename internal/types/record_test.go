package types

import "testing"

func TestFingerprintStable(t *testing.T) {
	r := &Record{
		URL:        "https://terms.naver.com/entry.naver?docId=1&cid=51000",
		KoreanName: "타이레놀정",
		Category:   "해열진통제",
		Company:    "한국얀센",
	}
	if r.Fingerprint() != r.Fingerprint() {
		t.Fatal("fingerprint not stable across calls")
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := &Record{}
	a.Apply(map[Field]string{
		FieldKoreanName: "타이레놀정",
		FieldCategory:   "해열진통제",
		FieldCompany:    "한국얀센",
	})

	b := &Record{}
	b.Apply(map[Field]string{FieldCompany: "한국얀센"})
	b.Apply(map[Field]string{FieldCategory: "해열진통제"})
	b.Apply(map[Field]string{FieldKoreanName: "타이레놀정"})

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint depends on insertion order: %s != %s", a.Fingerprint(), b.Fingerprint())
	}
}

func TestFingerprintExcludesURL(t *testing.T) {
	a := &Record{URL: "https://terms.naver.com/entry.naver?docId=1&cid=51000", KoreanName: "게보린정", Efficacy: "두통"}
	b := &Record{URL: "https://terms.naver.com/entry.naver?docId=2&cid=51000", KoreanName: "게보린정", Efficacy: "두통"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("records differing only by URL must hash identically")
	}
}

func TestValidateRequiresImportantField(t *testing.T) {
	r := &Record{
		URL:         "https://terms.naver.com/entry.naver?docId=1&cid=51000",
		KoreanName:  "게보린정",
		EnglishName: "Geworin Tab.", // not an important field
		Shape:       "원형",
	}
	ok, missing := r.Validate()
	if ok {
		t.Fatal("record with zero important fields must be rejected")
	}
	if len(missing) != len(ImportantFields) {
		t.Fatalf("expected all %d important fields missing, got %d", len(ImportantFields), len(missing))
	}

	r.Company = "삼진제약"
	ok, missing = r.Validate()
	if !ok {
		t.Fatal("one important field (company) must be enough")
	}
	if len(missing) != len(ImportantFields)-1 {
		t.Fatalf("expected %d missing fields, got %d", len(ImportantFields)-1, len(missing))
	}
}

func TestValidateRequiresNameAndURL(t *testing.T) {
	r := &Record{URL: "https://terms.naver.com/entry.naver?docId=1&cid=51000", Efficacy: "두통"}
	if ok, _ := r.Validate(); ok {
		t.Fatal("record without korean_name must be rejected")
	}
	r = &Record{KoreanName: "게보린정", Efficacy: "두통"}
	if ok, _ := r.Validate(); ok {
		t.Fatal("record without url must be rejected")
	}
}

func TestMergePreservesExistingOnEmptyIncoming(t *testing.T) {
	old := &Record{URL: "u", KoreanName: "게보린정", Company: "삼진제약", Efficacy: "두통"}
	in := &Record{URL: "u", KoreanName: "게보린정", Dosage: "1회 1정"}

	old.Merge(in)

	if old.Company != "삼진제약" {
		t.Fatalf("empty incoming value must not clobber existing: company=%q", old.Company)
	}
	if old.Dosage != "1회 1정" {
		t.Fatalf("incoming non-empty value must win: dosage=%q", old.Dosage)
	}
}

func TestMergeNewValueWins(t *testing.T) {
	old := &Record{URL: "u", KoreanName: "게보린정", Efficacy: "두통"}
	in := &Record{URL: "u", KoreanName: "게보린정", Efficacy: "두통, 치통, 생리통"}

	old.Merge(in)

	if old.Efficacy != "두통, 치통, 생리통" {
		t.Fatalf("incoming non-empty value must overwrite: efficacy=%q", old.Efficacy)
	}
}

func TestApplyFirstStrategyWins(t *testing.T) {
	r := &Record{}
	r.Apply(map[Field]string{FieldCategory: "해열진통제"})
	r.Apply(map[Field]string{FieldCategory: "소화제"}) // later phase must not override
	if r.Category != "해열진통제" {
		t.Fatalf("apply must keep first non-empty value, got %q", r.Category)
	}
}
