package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/llm"
	"github.com/kalambet/solace/internal/storage"
)

const (
	defaultHistoryLimit    = 20
	defaultMaxPromptTokens = 4000
	journalSnippetMaxChars = 200
	journalContextEntryCap = 3
)

// Composer assembles the ordered prompt for a companion turn: persona system
// prompt, optional journal-context note, bounded conversation history, and
// the new user message.
type Composer struct {
	Persona         string
	HistoryLimit    int
	MaxPromptTokens int
}

// New creates a Composer with the given persona system prompt.
// Zero limits select defaults (20 history messages, 4000 token budget).
func New(persona string, historyLimit, maxPromptTokens int) *Composer {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if maxPromptTokens <= 0 {
		maxPromptTokens = defaultMaxPromptTokens
	}
	return &Composer{Persona: persona, HistoryLimit: historyLimit, MaxPromptTokens: maxPromptTokens}
}

// Compose builds the prompt segments. Journal entries are woven into a second
// system note; pass nil when the user has not allowed data analysis. History
// must already be plaintext and in chronological order; when it exceeds the
// limit or the token budget, the oldest messages are dropped first.
func (c *Composer) Compose(history []storage.Message, entries []journal.Entry, userMessage string) []llm.Segment {
	segments := []llm.Segment{{Role: "system", Content: c.Persona}}

	if note := journalNote(entries); note != "" {
		segments = append(segments, llm.Segment{Role: "system", Content: note})
	}

	if len(history) > c.HistoryLimit {
		history = history[len(history)-c.HistoryLimit:]
	}

	// Budget: drop oldest history first when the full prompt would run over.
	fixed := 0
	for _, s := range segments {
		fixed += EstimateTokens(s.Content)
	}
	fixed += EstimateTokens(userMessage)

	start := 0
	budget := c.MaxPromptTokens - fixed
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		tokens := EstimateTokens(history[i].Content)
		if total+tokens > budget {
			start = i + 1
			break
		}
		total += tokens
	}

	for _, m := range history[start:] {
		role := string(m.Role)
		if role != "assistant" {
			role = "user"
		}
		segments = append(segments, llm.Segment{Role: role, Content: m.Content})
	}

	return append(segments, llm.Segment{Role: "user", Content: userMessage})
}

// journalNote formats up to three recent journal entries as context for the
// model, truncating long entries.
func journalNote(entries []journal.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > journalContextEntryCap {
		entries = entries[:journalContextEntryCap]
	}

	var sb strings.Builder
	sb.WriteString("Recent journal entries the user has shared with you:\n")
	for _, e := range entries {
		snippet := truncate(e.Content, journalSnippetMaxChars)
		sb.WriteString(fmt.Sprintf("- [%s, %s] %s\n", e.CreatedAt.Format("Jan 2"), e.Mood, snippet))
	}
	sb.WriteString("Use this context gently; never quote entries back verbatim.")
	return sb.String()
}

// truncate cuts s to at most max bytes without splitting a multi-byte
// UTF-8 character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "…"
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
