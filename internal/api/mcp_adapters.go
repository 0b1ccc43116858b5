package api

import (
	"context"
	"fmt"

	"github.com/kalambet/solace/internal/companion"
	"github.com/kalambet/solace/internal/insights"
	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/security"
)

// NewMCPDeps bridges the concrete services to the MCP wire types.
func NewMCPDeps(guard *security.Guard, orch *companion.Orchestrator, engine *insights.Engine, jr *journal.Service) MCPDeps {
	return MCPDeps{
		Companion: companionAdapter{guard, orch},
		Insights:  insightAdapter{engine},
		Journal:   journalAdapter{jr},
	}
}

type companionAdapter struct {
	guard *security.Guard
	orch  *companion.Orchestrator
}

func (a companionAdapter) SendMessage(ctx context.Context, userID, text string) (CompanionReply, error) {
	// MCP clients never go through the session endpoint, so stamp activity
	// here or the orchestrator's idle-timeout check rejects every check-in.
	if err := a.guard.RefreshActivity(ctx, userID); err != nil {
		return CompanionReply{}, fmt.Errorf("refreshing session activity: %w", err)
	}
	reply, err := a.orch.SendMessage(ctx, userID, text)
	if err != nil {
		return CompanionReply{}, err
	}
	return CompanionReply{
		Message:          reply.Message.Content,
		SuggestedReplies: reply.SuggestedReplies,
		Crisis:           reply.Crisis,
		Resources:        reply.Resources,
	}, nil
}

type insightAdapter struct {
	engine *insights.Engine
}

func (a insightAdapter) Insights(ctx context.Context, userID string) ([]MCPInsight, error) {
	batch := a.engine.GetPersonalizedInsights(ctx, userID)
	out := make([]MCPInsight, len(batch))
	for i, in := range batch {
		dto := toInsightDTO(in)
		out[i] = MCPInsight{
			ID:          dto.ID,
			Type:        dto.Type,
			Title:       dto.Title,
			Content:     dto.Content,
			ActionItems: dto.ActionItems,
			Priority:    dto.Priority,
		}
	}
	return out, nil
}

func (a insightAdapter) MoodTrend(ctx context.Context, userID string) (MCPMoodTrend, bool, error) {
	mt, ok, err := a.engine.MoodTrendFor(ctx, userID)
	if err != nil || !ok {
		return MCPMoodTrend{}, false, err
	}
	return MCPMoodTrend{
		Trend:        string(mt.Trend),
		DominantMood: mt.DominantMood,
		Triggers:     mt.Triggers,
		RecentAvg:    mt.RecentAvg,
		OlderAvg:     mt.OlderAvg,
	}, true, nil
}

type journalAdapter struct {
	svc *journal.Service
}

func (a journalAdapter) AddEntry(ctx context.Context, userID, mood, content string, tags []string) (string, error) {
	entry, err := a.svc.Add(ctx, userID, mood, content, tags)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}
