package security

import "regexp"

// RedactedPlaceholder replaces matched sensitive content.
const RedactedPlaceholder = "[REDACTED]"

// FilterResult describes the outcome of a sensitive-content scan.
// CleanContent is only set when Filtered is true; the original text is
// never mutated.
type FilterResult struct {
	Filtered     bool
	Reason       string
	CleanContent string
}

type patternCategory struct {
	name string
	re   *regexp.Regexp
}

// Category order is significant: the first match wins and determines the
// reported reason.
var filterCategories = []patternCategory{
	{"government_id", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"payment_card", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{"email_address", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone_number", regexp.MustCompile(`(?:\(\d{3}\)|\b\d{3})[-. ]\d{3}[-. ]\d{4}\b`)},
	{"crisis_language", crisisPattern},
}

// FilterSensitiveContent scans text against the ordered pattern categories
// and, on first match, returns the matched category and a redacted copy.
// Pure and deterministic.
func FilterSensitiveContent(text string) FilterResult {
	for _, cat := range filterCategories {
		if !cat.re.MatchString(text) {
			continue
		}
		return FilterResult{
			Filtered:     true,
			Reason:       cat.name,
			CleanContent: cat.re.ReplaceAllString(text, RedactedPlaceholder),
		}
	}
	return FilterResult{}
}
