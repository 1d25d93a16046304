package matching

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
)

var legalSuffixes = map[string]bool{
	"kft": true, "zrt": true, "nyrt": true, "bt": true, "kkt": true, "ev": true,
	"ltd": true, "llc": true, "inc": true, "corp": true, "co": true, "plc": true,
	"gmbh": true, "ag": true, "sa": true, "srl": true, "sro": true, "bv": true,
}

// vendorTokens reduces a name to its distinctive tokens: case-folded,
// punctuation removed, legal form suffixes dropped.
func vendorTokens(name string) []string {
	key := extraction.ComparisonKey(name)
	fields := strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if !legalSuffixes[f] {
			tokens = append(tokens, f)
		}
	}
	if len(tokens) == 0 {
		return fields
	}
	return tokens
}

// VendorSimilarity is the larger of the normalized edit ratio and the token
// Jaccard overlap of two vendor names, in [0, 1].
func VendorSimilarity(a, b string) float64 {
	ta, tb := vendorTokens(a), vendorTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	return max(editRatio(strings.Join(ta, " "), strings.Join(tb, " ")), jaccard(ta, tb))
}

// TextSimilarity is the normalized edit ratio of two comparison keys.
func TextSimilarity(a, b string) float64 {
	return editRatio(extraction.ComparisonKey(a), extraction.ComparisonKey(b))
}

func editRatio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func jaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
