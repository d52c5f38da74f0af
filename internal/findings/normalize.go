package findings

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	punctStripper = strings.NewReplacer(
		".", "", ",", "", ";", "", ":", "",
		"!", "", "?", "", "'", "", `"`, "",
	)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeValue standardizes an extracted value for dedup and identity
// keying by case-folding, trimming, stripping punctuation, and collapsing
// whitespace. "John Smith." and "john  smith" normalize identically.
// Fold casers are stateful, so one is built per call.
func NormalizeValue(value string) string {
	v := strings.TrimSpace(value)
	v = punctStripper.Replace(v)
	v = multiSpaceRe.ReplaceAllString(v, " ")
	return cases.Fold().String(strings.TrimSpace(v))
}

// identityKey builds the dedup key for a finding. Two findings with the
// same key are the same fact observed in different extraction windows.
func identityKey(categoryKey, fieldKey, normalizedValue string) string {
	return categoryKey + "|" + fieldKey + "|" + normalizedValue
}
