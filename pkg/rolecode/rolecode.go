// Package rolecode derives canonical role codes from free-text department and
// position labels.
package rolecode

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// synonyms maps normalized labels to their canonical code
var synonyms = map[string]string{
	"TRUONG_NHOM":  "LEADER",
	"NHOM_TRUONG":  "LEADER",
	"TEAM_LEAD":    "LEADER",
	"TRUONG_PHONG": "MANAGER",
	"QUAN_LY":      "MANAGER",
	"PHO_PHONG":    "DEPUTY_MANAGER",
	"GIAM_DOC":     "DIRECTOR",
	"NHAN_VIEN":    "STAFF",
	"KE_TOAN":      "ACCOUNTANT",
	"KINH_DOANH":   "SALES",
}

var letterMap = strings.NewReplacer("đ", "d", "Đ", "D")

// Normalize maps a label to a role code: diacritics are stripped, đ/Đ become
// d/D, the result is uppercased, whitespace runs become a single underscore,
// and known synonyms are replaced by their canonical code.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}

	code := strings.Join(strings.Fields(strings.ToUpper(letterMap.Replace(stripped))), "_")
	if canonical, ok := synonyms[code]; ok {
		return canonical
	}
	return code
}

// Derive builds the role code for a department and position pair. Either part
// may be empty.
func Derive(department, position string) string {
	var parts []string
	for _, label := range []string{department, position} {
		if code := Normalize(label); code != "" {
			parts = append(parts, code)
		}
	}
	return strings.Join(parts, "_")
}
