package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultUser is the account MCP tools act on. The MCP transport is local
// stdio with no session handshake, so it serves the machine's owner.
const DefaultUser = "local"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Companion CompanionService
	Insights  InsightService
	Journal   JournalService
}

// CompanionService abstracts the chat orchestrator for the MCP layer.
type CompanionService interface {
	SendMessage(ctx context.Context, userID, text string) (CompanionReply, error)
}

// CompanionReply mirrors the orchestrator reply for MCP serialization.
type CompanionReply struct {
	Message          string   `json:"message"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
	Crisis           bool     `json:"crisis,omitempty"`
	Resources        []string `json:"resources,omitempty"`
}

// InsightService abstracts the insight engine for the MCP layer.
type InsightService interface {
	Insights(ctx context.Context, userID string) ([]MCPInsight, error)
	MoodTrend(ctx context.Context, userID string) (MCPMoodTrend, bool, error)
}

// MCPInsight is the wire form of an insight.
type MCPInsight struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ActionItems []string `json:"action_items"`
	Priority    string   `json:"priority"`
}

// MCPMoodTrend is the wire form of a mood trajectory.
type MCPMoodTrend struct {
	Trend        string   `json:"trend"`
	DominantMood string   `json:"dominant_mood"`
	Triggers     []string `json:"triggers,omitempty"`
	RecentAvg    float64  `json:"recent_avg"`
	OlderAvg     float64  `json:"older_avg"`
}

// JournalService abstracts journal writes for the MCP layer.
type JournalService interface {
	AddEntry(ctx context.Context, userID, mood, content string, tags []string) (string, error)
}

// Recommender returns time-of-day self-care suggestions.
type Recommender func(now time.Time) []string

// NewMCPServer creates an MCP server with all solace tools and resources
// registered.
func NewMCPServer(deps MCPDeps, recommend Recommender) *server.MCPServer {
	s := server.NewMCPServer(
		"solace",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("solace — private emotional companion with journaling, mood insight, and crisis-aware conversation."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("check_in",
			mcp.WithDescription("Send a message to the companion and receive an emotionally aware reply."),
			mcp.WithString("message", mcp.Description("What the user wants to say"), mcp.Required()),
		),
		mcpCheckIn(deps),
	)

	s.AddTool(
		mcp.NewTool("journal_entry",
			mcp.WithDescription("Record a journal entry with a mood label for later insight analysis."),
			mcp.WithString("mood", mcp.Description("Mood label (e.g. happy, anxious, tired)"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The entry text"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags (e.g. work, relationship)")),
		),
		mcpJournalEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("get_insights",
			mcp.WithDescription("Return the current personalized insights derived from the journal."),
		),
		mcpGetInsights(deps),
	)

	s.AddTool(
		mcp.NewTool("get_recommendations",
			mcp.WithDescription("Return self-care recommendations for the current time of day."),
		),
		mcpGetRecommendations(recommend),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://insights",
			"Current Insights",
			mcp.WithResourceDescription("Personalized insights as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceInsights(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://mood-trend",
			"Mood Trend",
			mcp.WithResourceDescription("Recent mood trajectory as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMoodTrend(deps),
	)

	return s
}

func mcpCheckIn(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Companion.SendMessage(ctx, DefaultUser, message)
		if err != nil {
			return mcpError(fmt.Sprintf("check-in failed: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpJournalEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mood, err := req.RequireString("mood")
		if err != nil {
			return mcpError("mood is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)

		id, err := deps.Journal.AddEntry(ctx, DefaultUser, mood, content, tags)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save entry: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded journal entry %s", id)), nil
	}
}

func mcpGetInsights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		batch, err := deps.Insights.Insights(ctx, DefaultUser)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compute insights: %v", err)), nil
		}
		if len(batch) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(batch)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal insights: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetRecommendations(recommend Recommender) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(recommend(time.Now()))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal recommendations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceInsights(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		batch, err := deps.Insights.Insights(ctx, DefaultUser)
		if err != nil {
			return nil, fmt.Errorf("failed to compute insights: %w", err)
		}

		b, err := json.Marshal(batch)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal insights: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceMoodTrend(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		mt, ok, err := deps.Insights.MoodTrend(ctx, DefaultUser)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze mood trend: %w", err)
		}

		text := `{"trend":"unknown"}`
		if ok {
			b, err := json.Marshal(mt)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal mood trend: %w", err)
			}
			text = string(b)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
