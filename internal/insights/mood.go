package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/solace/internal/journal"
)

// moodScores maps mood labels to a fixed numeric scale. Unrecognized labels
// score neutral.
var moodScores = map[string]float64{
	"happy":       5,
	"excited":     5,
	"joyful":      5,
	"grateful":    4.5,
	"content":     4,
	"calm":        4,
	"hopeful":     4,
	"neutral":     3,
	"tired":       2.5,
	"bored":       2.5,
	"anxious":     2,
	"stressed":    2,
	"frustrated":  2,
	"sad":         1.5,
	"angry":       1.5,
	"lonely":      1.5,
	"overwhelmed": 1,
	"depressed":   1,
}

const neutralScore = 3

func moodScore(label string) float64 {
	if s, ok := moodScores[strings.ToLower(label)]; ok {
		return s
	}
	return neutralScore
}

// Trend classifies the direction of a user's recent mood.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

const (
	moodSampleSize = 14
	moodSplit      = 7
	trendThreshold = 0.5
	maxTriggers    = 5
)

// MoodTrend summarizes mood movement over the sampled entries.
type MoodTrend struct {
	Trend        Trend
	DominantMood string
	Triggers     []string
	RecentAvg    float64
	OlderAvg     float64
}

// analyzeMoodTrend compares the most recent entries against the older half
// of the sample. Entries must be ordered newest first. ok is false when the
// sample is too thin to compare halves.
func analyzeMoodTrend(entries []journal.Entry) (MoodTrend, bool) {
	if len(entries) > moodSampleSize {
		entries = entries[:moodSampleSize]
	}
	if len(entries) <= moodSplit {
		return MoodTrend{}, false
	}

	recent := entries[:moodSplit]
	older := entries[moodSplit:]

	recentAvg := meanScore(recent)
	olderAvg := meanScore(older)

	trend := TrendStable
	switch {
	case recentAvg-olderAvg > trendThreshold:
		trend = TrendImproving
	case recentAvg-olderAvg < -trendThreshold:
		trend = TrendDeclining
	}

	return MoodTrend{
		Trend:        trend,
		DominantMood: dominantMood(entries),
		Triggers:     observedTags(entries, maxTriggers),
		RecentAvg:    recentAvg,
		OlderAvg:     olderAvg,
	}, true
}

func meanScore(entries []journal.Entry) float64 {
	var sum float64
	for _, e := range entries {
		sum += moodScore(e.Mood)
	}
	return sum / float64(len(entries))
}

// dominantMood returns the mode of mood labels; ties break alphabetically
// for determinism.
func dominantMood(entries []journal.Entry) string {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[strings.ToLower(e.Mood)]++
	}
	var best string
	bestCount := 0
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}

// observedTags returns the distinct tags across entries in first-seen order,
// capped at max.
func observedTags(entries []journal.Entry, max int) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, e := range entries {
		for _, tag := range e.Tags {
			tag = strings.ToLower(tag)
			if seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
			if len(tags) == max {
				return tags
			}
		}
	}
	return tags
}

func moodTrendContent(mt MoodTrend) string {
	switch mt.Trend {
	case TrendImproving:
		return fmt.Sprintf("Your mood has been trending upward lately. %q has come up most often, and it shows: keep doing what's working.", mt.DominantMood)
	case TrendDeclining:
		return fmt.Sprintf("Your recent entries suggest things have felt heavier than before, with %q showing up most. Be gentle with yourself; small routines help.", mt.DominantMood)
	default:
		return fmt.Sprintf("Your mood has been steady, most often %q. Stability is worth noticing too.", mt.DominantMood)
	}
}
