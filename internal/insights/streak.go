package insights

import (
	"time"

	"github.com/kalambet/solace/internal/journal"
)

// calculateStreak counts consecutive-day journaling from the newest entry
// backward. Entries must be ordered newest first; the walk stops at the
// first gap that is not exactly one day.
func calculateStreak(entries []journal.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	streak := 1
	prev := dateOf(entries[0].CreatedAt)
	for _, e := range entries[1:] {
		d := dateOf(e.CreatedAt)
		if prev.Sub(d) != 24*time.Hour {
			break
		}
		streak++
		prev = d
	}
	return streak
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
