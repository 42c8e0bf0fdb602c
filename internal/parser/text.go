package parser

import (
	"regexp"
	"strings"

	"medicrawl/internal/types"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace (including newlines) into single
// spaces and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// profileLabels maps profile <dt> label substrings to record fields.
// Matching is by containment: a label containing "분류" maps to category,
// and the first matching label wins per value.
var profileLabels = map[string]types.Field{
	"분류":   types.FieldCategory,
	"구분":   types.FieldType,
	"업체명":  types.FieldCompany,
	"성상":   types.FieldAppearance,
	"보험코드": types.FieldInsuranceCode,
	"모양":   types.FieldShape,
	"색깔":   types.FieldColor,
	"크기":   types.FieldSize,
	"식별표기": types.FieldIdentification,
}

// sectionHeadings maps long-text section heading substrings to record fields.
var sectionHeadings = map[string]types.Field{
	"성분정보": types.FieldComponents,
	"효능효과": types.FieldEfficacy,
	"주의사항": types.FieldPrecautions,
	"용법용량": types.FieldDosage,
	"저장방법": types.FieldStorage,
	"사용기간": types.FieldPeriod,
}

// matchLabel returns the field a label maps to, by substring containment.
func matchLabel(table map[string]types.Field, label string) (types.Field, bool) {
	for sub, field := range table {
		if strings.Contains(label, sub) {
			return field, true
		}
	}
	return "", false
}
