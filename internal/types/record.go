package types

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Record is a single medicine dictionary entry extracted from the
// encyclopedia site. All descriptive fields are optional strings; URL is
// the durable identity and ID is assigned by storage on insert.
type Record struct {
	ID  int64  `json:"id,omitempty"`
	URL string `json:"url"`

	// Profile attributes.
	KoreanName     string `json:"korean_name,omitempty"`
	EnglishName    string `json:"english_name,omitempty"`
	Category       string `json:"category,omitempty"`
	Type           string `json:"type,omitempty"`
	Company        string `json:"company,omitempty"`
	Appearance     string `json:"appearance,omitempty"`
	InsuranceCode  string `json:"insurance_code,omitempty"`
	Shape          string `json:"shape,omitempty"`
	Color          string `json:"color,omitempty"`
	Size           string `json:"size,omitempty"`
	Identification string `json:"identification,omitempty"`

	// Long-text sections.
	Components  string `json:"components,omitempty"`
	Efficacy    string `json:"efficacy,omitempty"`
	Precautions string `json:"precautions,omitempty"`
	Dosage      string `json:"dosage,omitempty"`
	Storage     string `json:"storage,omitempty"`
	Period      string `json:"period,omitempty"`

	// Media.
	ImageURL  string `json:"image_url,omitempty"`
	ImagePath string `json:"image_path,omitempty"`

	// Integrity and lifecycle.
	DataHash  string    `json:"data_hash,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Field identifies a Record field by its persisted column name.
type Field string

const (
	FieldKoreanName     Field = "korean_name"
	FieldEnglishName    Field = "english_name"
	FieldCategory       Field = "category"
	FieldType           Field = "type"
	FieldCompany        Field = "company"
	FieldAppearance     Field = "appearance"
	FieldInsuranceCode  Field = "insurance_code"
	FieldShape          Field = "shape"
	FieldColor          Field = "color"
	FieldSize           Field = "size"
	FieldIdentification Field = "identification"
	FieldComponents     Field = "components"
	FieldEfficacy       Field = "efficacy"
	FieldPrecautions    Field = "precautions"
	FieldDosage         Field = "dosage"
	FieldStorage        Field = "storage"
	FieldPeriod         Field = "period"
	FieldImageURL       Field = "image_url"
)

// ImportantFields is the subset whose presence (at least one) makes a
// record worth persisting.
var ImportantFields = []Field{
	FieldEfficacy,
	FieldDosage,
	FieldPrecautions,
	FieldComponents,
	FieldCategory,
	FieldCompany,
}

// fieldRef pairs a column name with a pointer into the struct so Merge,
// Fingerprint and Apply can iterate fields without reflection.
type fieldRef struct {
	name Field
	ptr  *string
}

func (r *Record) fields() []fieldRef {
	return []fieldRef{
		{FieldKoreanName, &r.KoreanName},
		{FieldEnglishName, &r.EnglishName},
		{FieldCategory, &r.Category},
		{FieldType, &r.Type},
		{FieldCompany, &r.Company},
		{FieldAppearance, &r.Appearance},
		{FieldInsuranceCode, &r.InsuranceCode},
		{FieldShape, &r.Shape},
		{FieldColor, &r.Color},
		{FieldSize, &r.Size},
		{FieldIdentification, &r.Identification},
		{FieldComponents, &r.Components},
		{FieldEfficacy, &r.Efficacy},
		{FieldPrecautions, &r.Precautions},
		{FieldDosage, &r.Dosage},
		{FieldStorage, &r.Storage},
		{FieldPeriod, &r.Period},
		{FieldImageURL, &r.ImageURL},
	}
}

// Get returns the value of a field by column name.
func (r *Record) Get(f Field) string {
	for _, ref := range r.fields() {
		if ref.name == f {
			return *ref.ptr
		}
	}
	return ""
}

// Apply copies a phase patch into the record. Existing non-empty values
// are not overwritten; extraction phases run in priority order and the
// first strategy to yield a field wins.
func (r *Record) Apply(patch map[Field]string) {
	for _, ref := range r.fields() {
		if v, ok := patch[ref.name]; ok && v != "" && *ref.ptr == "" {
			*ref.ptr = v
		}
	}
}

// Merge folds another record into this one: the incoming non-empty value
// wins, the existing value is kept when the incoming one is empty.
func (r *Record) Merge(in *Record) {
	theirs := in.fields()
	for i, ref := range r.fields() {
		if v := *theirs[i].ptr; v != "" {
			*ref.ptr = v
		}
	}
	if in.ImagePath != "" {
		r.ImagePath = in.ImagePath
	}
}

// Fingerprint computes the order-independent content hash over all
// non-empty descriptive fields: sorted name:value pairs joined with "||",
// MD5 hex. URL, ID, image path and timestamps are excluded so the same
// content reached via a different URL hashes identically.
func (r *Record) Fingerprint() string {
	pairs := make([]string, 0, 18)
	for _, ref := range r.fields() {
		if *ref.ptr != "" {
			pairs = append(pairs, string(ref.name)+":"+*ref.ptr)
		}
	}
	sort.Strings(pairs)
	sum := md5.Sum([]byte(strings.Join(pairs, "||")))
	return hex.EncodeToString(sum[:])
}

// FieldCount reports how many descriptive fields are populated.
func (r *Record) FieldCount() int {
	n := 0
	for _, ref := range r.fields() {
		if *ref.ptr != "" {
			n++
		}
	}
	return n
}

// Validate checks whether the record is worth persisting: korean_name and
// url must be set, and at least one important field must be populated.
// The returned slice lists the important fields that were missing, for
// logging on rejection.
func (r *Record) Validate() (bool, []Field) {
	if r.KoreanName == "" || r.URL == "" {
		return false, ImportantFields
	}
	missing := make([]Field, 0, len(ImportantFields))
	for _, f := range ImportantFields {
		if r.Get(f) == "" {
			missing = append(missing, f)
		}
	}
	return len(missing) < len(ImportantFields), missing
}
