package insights

import "time"

// Hour-of-day buckets for time-based recommendations.
var (
	morningRecommendations = []string{
		"Take five minutes to set an intention for the day",
		"A short walk before the day starts can anchor your mood",
		"Note one thing you're looking forward to today",
	}
	middayRecommendations = []string{
		"Step away from your screen for a real break",
		"Check in with yourself: how is the day actually going?",
		"A few slow breaths between tasks resets more than you'd think",
	}
	eveningRecommendations = []string{
		"Jot down one moment from today worth remembering",
		"Wind down without your phone for the last half hour",
		"Reach out to someone you've been meaning to talk to",
	}
	nightRecommendations = []string{
		"If your mind is racing, write the thoughts down and leave them for tomorrow",
		"Keep the lights low and let your body know the day is over",
		"It's late; be kind to tomorrow-you and rest",
	}
)

// TimeBasedRecommendations returns the fixed recommendation set for the hour
// of day. Pure function of now; nothing is persisted.
func TimeBasedRecommendations(now time.Time) []string {
	switch hour := now.Hour(); {
	case hour >= 5 && hour < 12:
		return morningRecommendations
	case hour >= 12 && hour < 17:
		return middayRecommendations
	case hour >= 17 && hour < 22:
		return eveningRecommendations
	default:
		return nightRecommendations
	}
}
