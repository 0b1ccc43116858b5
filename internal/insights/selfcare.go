package insights

import (
	"strings"

	"github.com/kalambet/solace/internal/journal"
)

var stressMoods = map[string]bool{
	"stressed":    true,
	"anxious":     true,
	"overwhelmed": true,
}

var negativeMoods = map[string]bool{
	"sad":         true,
	"angry":       true,
	"lonely":      true,
	"depressed":   true,
	"stressed":    true,
	"anxious":     true,
	"overwhelmed": true,
	"frustrated":  true,
}

const (
	selfCareWindow         = 7
	stressCountThreshold   = 3
	negativeCountThreshold = 4
)

// needsSelfCare flags a self-care insight when the last 7 entries show
// sustained stress or a broader run of negative moods.
func needsSelfCare(entries []journal.Entry) bool {
	if len(entries) > selfCareWindow {
		entries = entries[:selfCareWindow]
	}

	stressCount := 0
	negativeCount := 0
	for _, e := range entries {
		mood := strings.ToLower(e.Mood)
		if stressMoods[mood] || strings.Contains(strings.ToLower(e.Content), "stress") {
			stressCount++
		}
		if negativeMoods[mood] {
			negativeCount++
		}
	}
	return stressCount >= stressCountThreshold || negativeCount >= negativeCountThreshold
}
