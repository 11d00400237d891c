package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize lowercases a scraped label and strips all whitespace so
// that values coming from differently formatted markup compare equal.
func Normalize(label string) string {
	label = strings.ToLower(label)
	label = strings.Trim(label, " \n\t")
	return whitespaceRegex.ReplaceAllString(label, "")
}

// DayPrefix produces the compact form of a weekday label ("Friday" ->
// "fri") by taking the first 3 bytes of the normalized label, matching
// the byte-oriented booking codes the restaurant backend emits. Labels
// that normalize to 3 bytes or fewer are returned as-is.
func DayPrefix(label string) string {
	normalized := Normalize(label)
	if len(normalized) <= 3 {
		return normalized
	}
	return normalized[:3]
}
