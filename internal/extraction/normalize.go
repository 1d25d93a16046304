package extraction

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var spaceRun = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs and trims. Casing is preserved for display.
func CleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// ComparisonKey is the case-folded NFKC form of s used for fuzzy comparison.
func ComparisonKey(s string) string {
	return cases.Fold().String(norm.NFKC.String(CleanText(s)))
}

// Day-first for ambiguous numeric dates.
var dateLayouts = []string{
	time.DateOnly,
	"2006-1-2",
	"2006.1.2",
	"2006/1/2",
	"20060102",
	"2.1.2006",
	"2/1/2006",
	"2-1-2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeDate reparses a provider date into YYYY-MM-DD.
func NormalizeDate(raw string) (string, bool) {
	s := CleanText(raw)
	s = strings.ReplaceAll(s, ". ", ".")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}
