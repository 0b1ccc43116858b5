package companion

import "strings"

// moodKeywords maps mood labels to indicator words looked for in user text.
// Order is significant: the first label with a hit wins.
var moodKeywords = []struct {
	label    string
	keywords []string
}{
	{"stressed", []string{"stressed", "stress", "overwhelmed", "pressure", "burnt out", "burned out"}},
	{"anxious", []string{"anxious", "anxiety", "worried", "nervous", "panic"}},
	{"sad", []string{"sad", "down", "depressed", "lonely", "crying", "miss "}},
	{"angry", []string{"angry", "furious", "frustrated", "annoyed"}},
	{"tired", []string{"tired", "exhausted", "drained", "can't sleep"}},
	{"happy", []string{"happy", "great", "excited", "wonderful", "amazing"}},
	{"grateful", []string{"grateful", "thankful", "appreciate"}},
	{"calm", []string{"calm", "peaceful", "relaxed"}},
}

// detectMood returns a best-effort mood label for user text, or "" when no
// indicator is present. Purely lexical; it feeds message metadata, not any
// security decision.
func detectMood(text string) string {
	lower := strings.ToLower(text)
	for _, m := range moodKeywords {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return m.label
			}
		}
	}
	return ""
}

// suggestedReplies returns quick-reply options for the assistant's text.
// A reply that asks a question gets reflective continuations; anything else
// gets generic follow-ups.
func suggestedReplies(assistantText string) []string {
	if strings.Contains(assistantText, "?") {
		return []string{
			"Let me think about that",
			"Yes, exactly",
			"It's more complicated than that",
		}
	}
	return []string{
		"Tell me more",
		"That helps, thank you",
		"Can we talk about something else?",
	}
}
