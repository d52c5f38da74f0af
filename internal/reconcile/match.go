package reconcile

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// fuzzyNumberTolerance is the allowed relative delta for fuzzy_number
// comparison: 1% of the larger magnitude.
const fuzzyNumberTolerance = 0.01

var (
	textPunct = strings.NewReplacer(
		".", "", ",", "", ";", "", ":", "",
		"!", "", "?", "", "'", "", `"`, "",
	)
	spaceRe = regexp.MustCompile(`\s+`)
)

// dateLayouts are tried in order when parsing values in date_range mode.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ValuesMatch compares two values under the given conflict-detection
// mode. semantic has no similarity model and falls back to exact.
func ValuesMatch(a, b string, mode model.ConflictMode) bool {
	switch mode {
	case model.ModeFuzzyText:
		return normalizeText(a) == normalizeText(b)
	case model.ModeFuzzyNumber:
		return numbersMatch(a, b)
	case model.ModeDateRange:
		return datesMatch(a, b)
	case model.ModeExact, model.ModeSemantic:
		return a == b
	default:
		return a == b
	}
}

// normalizeText strips punctuation, collapses whitespace, and case-folds.
// Fold casers are stateful, so one is built per call.
func normalizeText(s string) string {
	s = textPunct.Replace(strings.TrimSpace(s))
	s = spaceRe.ReplaceAllString(s, " ")
	return cases.Fold().String(strings.TrimSpace(s))
}

// numbersMatch parses both values as numbers (currency symbols and
// separators stripped) and matches when they differ by at most 1% of the
// larger magnitude. Unparseable values fall back to trimmed equality.
func numbersMatch(a, b string) bool {
	x, okX := parseNumber(a)
	y, okY := parseNumber(b)
	if !okX || !okY {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}

	larger := math.Max(math.Abs(x), math.Abs(y))
	if larger == 0 {
		return true
	}
	return math.Abs(x-y) <= larger*fuzzyNumberTolerance
}

func parseNumber(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	for _, sym := range []string{"$", "£", "€", ","} {
		cleaned = strings.ReplaceAll(cleaned, sym, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// datesMatch parses both values as dates and matches on the same
// calendar day, ignoring time of day. Unparseable values fall back to
// trimmed equality.
func datesMatch(a, b string) bool {
	x, okX := parseDate(a)
	y, okY := parseDate(b)
	if !okX || !okY {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return x.Year() == y.Year() && x.Month() == y.Month() && x.Day() == y.Day()
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
