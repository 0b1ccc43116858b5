package security

import (
	"regexp"
	"strings"
)

// crisisPhrases is the fixed list of expressions that trigger escalation
// instead of normal reply generation. Matching is case-insensitive
// containment.
var crisisPhrases = []string{
	"kill myself",
	"killing myself",
	"suicide",
	"suicidal",
	"end my life",
	"ending my life",
	"want to die",
	"hurt myself",
	"hurting myself",
	"self harm",
	"self-harm",
	"no reason to live",
	"better off without me",
}

var crisisPattern = buildCrisisPattern()

func buildCrisisPattern() *regexp.Regexp {
	quoted := make([]string, len(crisisPhrases))
	for i, p := range crisisPhrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}

// DetectCrisis reports whether text contains any listed crisis phrase.
func DetectCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range crisisPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// CrisisResponse is the fixed escalation payload returned in place of a
// generated reply when crisis language is detected.
type CrisisResponse struct {
	Message   string
	Resources []string
}

// CrisisSupportResponse returns the escalation payload. The content is
// static so it can never depend on an upstream call succeeding.
func CrisisSupportResponse() CrisisResponse {
	return CrisisResponse{
		Message: "I'm really glad you told me. You don't have to face this alone — " +
			"what you're feeling matters, and support is available right now. " +
			"If you are in immediate danger, please reach out to one of the resources below.",
		Resources: []string{
			"988 Suicide & Crisis Lifeline: call or text 988 (US)",
			"Crisis Text Line: text HOME to 741741",
			"International Association for Suicide Prevention: https://www.iasp.info/resources/Crisis_Centres/",
		},
	}
}
