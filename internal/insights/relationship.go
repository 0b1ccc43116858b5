package insights

import (
	"sort"
	"strings"

	"github.com/kalambet/solace/internal/journal"
)

// relationshipTags marks entries that feed the relationship analysis.
var relationshipTags = map[string]bool{
	"relationship": true,
	"partner":      true,
	"marriage":     true,
	"dating":       true,
	"love":         true,
	"family":       true,
	"friendship":   true,
}

// relationshipCategories are the four fixed pattern categories, each with
// static advice and exercises. Matching is case-insensitive keyword
// containment against entry content.
var relationshipCategories = []struct {
	name      string
	keywords  []string
	advice    string
	exercises []string
}{
	{
		name:     "conflict",
		keywords: []string{"fight", "argue", "argument", "yelled", "conflict", "disagree"},
		advice:   "Recurring conflict often hides an unmet need. Try naming the need behind the complaint before the next difficult conversation.",
		exercises: []string{
			"Write down what you actually needed in the last argument",
			"Agree on a pause signal for heated moments",
		},
	},
	{
		name:     "communication",
		keywords: []string{"talk", "listen", "misunderstood", "communication", "ignored", "silent"},
		advice:   "Feeling unheard usually improves faster with structured check-ins than with more spontaneous talking.",
		exercises: []string{
			"Schedule a 15-minute weekly check-in with no distractions",
			"Practice repeating back what you heard before responding",
		},
	},
	{
		name:     "distance",
		keywords: []string{"distant", "apart", "disconnected", "alone", "space", "drifting"},
		advice:   "Distance tends to grow quietly. Small shared rituals rebuild closeness more reliably than grand gestures.",
		exercises: []string{
			"Reintroduce one small shared ritual this week",
			"Share one thing you appreciated about each other today",
		},
	},
	{
		name:     "jealousy",
		keywords: []string{"jealous", "jealousy", "envy", "insecure", "suspicious"},
		advice:   "Jealousy is usually a signal about your own sense of security. Naming the fear underneath it takes away much of its charge.",
		exercises: []string{
			"Write the specific fear behind the jealous feeling",
			"Tell your partner one reassurance that would genuinely help",
		},
	},
}

// PatternCount pairs a category with how often it appeared.
type PatternCount struct {
	Category  string
	Count     int
	Advice    string
	Exercises []string
}

// analyzeRelationships counts category keyword hits across
// relationship-tagged entries and returns categories sorted by descending
// frequency. Entries without relationship tags are ignored.
func analyzeRelationships(entries []journal.Entry) []PatternCount {
	counts := make(map[string]int)
	for _, e := range entries {
		if !hasRelationshipTag(e) {
			continue
		}
		lower := strings.ToLower(e.Content)
		for _, cat := range relationshipCategories {
			for _, kw := range cat.keywords {
				if strings.Contains(lower, kw) {
					counts[cat.name]++
					break
				}
			}
		}
	}

	var out []PatternCount
	for _, cat := range relationshipCategories {
		if counts[cat.name] == 0 {
			continue
		}
		out = append(out, PatternCount{
			Category:  cat.name,
			Count:     counts[cat.name],
			Advice:    cat.advice,
			Exercises: cat.exercises,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func hasRelationshipTag(e journal.Entry) bool {
	for _, tag := range e.Tags {
		if relationshipTags[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}
