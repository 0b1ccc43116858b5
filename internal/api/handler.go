package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/solace/internal/companion"
	"github.com/kalambet/solace/internal/insights"
	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/security"
	"github.com/kalambet/solace/internal/storage"
)

const (
	maxRequestBodySize  = 1 << 20 // 1MB
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Deps holds the collaborators behind the HTTP surface.
type Deps struct {
	Guard     *security.Guard
	Companion *companion.Orchestrator
	Insights  *insights.Engine
	Journal   *journal.Service
}

// NewHandler returns the HTTP API. The session endpoint is guarded by the
// static API token; every user endpoint requires a session token issued
// there.
func NewHandler(apiToken string, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiToken))
		r.Post("/v1/session", handleStartSession(deps))
	})

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Guard))
		r.Post("/v1/chat", handleChat(deps))
		r.Get("/v1/history", handleHistory(deps))
		r.Post("/v1/journal", handleJournalEntry(deps))
		r.Get("/v1/journal", handleJournalList(deps))
		r.Get("/v1/insights", handleInsights(deps))
		r.Post("/v1/insights/{id}/read", handleInsightRead(deps))
		r.Get("/v1/recommendations", handleRecommendations())
		r.Get("/v1/privacy", handleGetPrivacy(deps))
		r.Patch("/v1/privacy", handlePatchPrivacy(deps))
		r.Get("/v1/retention", handleGetRetention(deps))
		r.Patch("/v1/retention", handlePatchRetention(deps))
		r.Get("/v1/export", handleExport(deps))
		r.Delete("/v1/account", handleDeleteAccount(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// --- Sessions ---

func handleStartSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		token, err := deps.Guard.StartSession(r.Context(), req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"token": token})
	}
}

// --- Chat ---

type messageDTO struct {
	ID               string    `json:"id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	DetectedMood     string    `json:"detected_mood,omitempty"`
	SuggestedReplies []string  `json:"suggested_replies,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toMessageDTO(m storage.Message) messageDTO {
	dto := messageDTO{
		ID:           m.ID,
		Role:         string(m.Role),
		Content:      m.Content,
		DetectedMood: m.DetectedMood,
		CreatedAt:    m.CreatedAt,
	}
	if m.SuggestedReplies != "" {
		if err := json.Unmarshal([]byte(m.SuggestedReplies), &dto.SuggestedReplies); err != nil {
			slog.Warn("malformed suggested replies, omitting", "message", m.ID, "error", err)
		}
	}
	return dto
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, err := deps.Companion.SendMessage(r.Context(), requestUser(r), req.Message)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := struct {
			Reply     messageDTO `json:"reply"`
			Crisis    bool       `json:"crisis,omitempty"`
			Resources []string   `json:"resources,omitempty"`
		}{
			Reply:     toMessageDTO(reply.Message),
			Crisis:    reply.Crisis,
			Resources: reply.Resources,
		}
		resp.Reply.SuggestedReplies = reply.SuggestedReplies
		writeJSON(w, resp)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and %d", maxHistoryLimit)
				return
			}
			limit = n
		}

		msgs, err := deps.Companion.History(r.Context(), requestUser(r), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]messageDTO, len(msgs))
		for i, m := range msgs {
			out[i] = toMessageDTO(m)
		}
		writeJSON(w, map[string]any{"messages": out})
	}
}

// --- Journal ---

func handleJournalEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mood    string   `json:"mood"`
			Content string   `json:"content"`
			Tags    []string `json:"tags"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		entry, err := deps.Journal.Add(r.Context(), requestUser(r), req.Mood, req.Content, req.Tags)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"id":         entry.ID,
			"created_at": entry.CreatedAt,
		})
	}
}

type journalEntryDTO struct {
	ID        string    `json:"id"`
	Mood      string    `json:"mood"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func handleJournalList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and %d", maxHistoryLimit)
				return
			}
			limit = n
		}

		entries, err := deps.Journal.Recent(r.Context(), requestUser(r), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]journalEntryDTO, len(entries))
		for i, e := range entries {
			out[i] = journalEntryDTO{
				ID:        e.ID,
				Mood:      e.Mood,
				Content:   e.Content,
				Tags:      e.Tags,
				CreatedAt: e.CreatedAt,
			}
		}
		writeJSON(w, map[string]any{"entries": out})
	}
}

// --- Insights ---

type insightDTO struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ActionItems    []string  `json:"action_items"`
	Priority       string    `json:"priority"`
	RelatedEntries []string  `json:"related_entries,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toInsightDTO(in storage.Insight) insightDTO {
	dto := insightDTO{
		ID:        in.ID,
		Type:      string(in.Type),
		Title:     in.Title,
		Content:   in.Content,
		Priority:  string(in.Priority),
		CreatedAt: in.CreatedAt,
	}
	if in.ActionItems != "" {
		json.Unmarshal([]byte(in.ActionItems), &dto.ActionItems)
	}
	if in.RelatedEntries != "" {
		json.Unmarshal([]byte(in.RelatedEntries), &dto.RelatedEntries)
	}
	return dto
}

func handleInsights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch := deps.Insights.GetPersonalizedInsights(r.Context(), requestUser(r))
		out := make([]insightDTO, len(batch))
		for i, in := range batch {
			out[i] = toInsightDTO(in)
		}
		writeJSON(w, map[string]any{"insights": out})
	}
}

func handleInsightRead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Insights.MarkInsightRead(r.Context(), requestUser(r), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func handleRecommendations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"recommendations": insights.TimeBasedRecommendations(time.Now()),
		})
	}
}

// --- Privacy & retention ---

type privacyDTO struct {
	EncryptConversations     bool `json:"encrypt_conversations"`
	AllowDataAnalysis        bool `json:"allow_data_analysis"`
	ShareInsightsWithPartner bool `json:"share_insights_with_partner"`
	DeleteDataAfterDays      *int `json:"delete_data_after_days"`
	AnonymizeData            bool `json:"anonymize_data"`
	ExportDataAllowed        bool `json:"export_data_allowed"`
}

func toPrivacyDTO(ps storage.PrivacySettings) privacyDTO {
	return privacyDTO{
		EncryptConversations:     ps.EncryptConversations,
		AllowDataAnalysis:        ps.AllowDataAnalysis,
		ShareInsightsWithPartner: ps.ShareInsightsWithPartner,
		DeleteDataAfterDays:      ps.DeleteDataAfterDays,
		AnonymizeData:            ps.AnonymizeData,
		ExportDataAllowed:        ps.ExportDataAllowed,
	}
}

func handleGetPrivacy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := deps.Guard.GetPrivacySettings(r.Context(), requestUser(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toPrivacyDTO(ps))
	}
}

func handlePatchPrivacy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EncryptConversations     *bool `json:"encrypt_conversations"`
			AllowDataAnalysis        *bool `json:"allow_data_analysis"`
			ShareInsightsWithPartner *bool `json:"share_insights_with_partner"`
			DeleteDataAfterDays      *int  `json:"delete_data_after_days"`
			ClearDeleteAfter         bool  `json:"clear_delete_after"`
			AnonymizeData            *bool `json:"anonymize_data"`
			ExportDataAllowed        *bool `json:"export_data_allowed"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		ps, err := deps.Guard.UpdatePrivacySettings(r.Context(), requestUser(r), security.PrivacyUpdate{
			EncryptConversations:     req.EncryptConversations,
			AllowDataAnalysis:        req.AllowDataAnalysis,
			ShareInsightsWithPartner: req.ShareInsightsWithPartner,
			DeleteDataAfterDays:      req.DeleteDataAfterDays,
			ClearDeleteAfter:         req.ClearDeleteAfter,
			AnonymizeData:            req.AnonymizeData,
			ExportDataAllowed:        req.ExportDataAllowed,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toPrivacyDTO(ps))
	}
}

type retentionDTO struct {
	ConversationDays  int  `json:"conversation_days"`
	JournalDays       int  `json:"journal_days"`
	InsightDays       int  `json:"insight_days"`
	AutoDeleteEnabled bool `json:"auto_delete_enabled"`
}

func handleGetRetention(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rp, err := deps.Guard.GetRetentionPolicy(r.Context(), requestUser(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, retentionDTO{
			ConversationDays:  rp.ConversationDays,
			JournalDays:       rp.JournalDays,
			InsightDays:       rp.InsightDays,
			AutoDeleteEnabled: rp.AutoDeleteEnabled,
		})
	}
}

func handlePatchRetention(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConversationDays  *int  `json:"conversation_days"`
			JournalDays       *int  `json:"journal_days"`
			InsightDays       *int  `json:"insight_days"`
			AutoDeleteEnabled *bool `json:"auto_delete_enabled"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		rp, err := deps.Guard.UpdateRetentionPolicy(r.Context(), requestUser(r), security.RetentionUpdate{
			ConversationDays:  req.ConversationDays,
			JournalDays:       req.JournalDays,
			InsightDays:       req.InsightDays,
			AutoDeleteEnabled: req.AutoDeleteEnabled,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, retentionDTO{
			ConversationDays:  rp.ConversationDays,
			JournalDays:       rp.JournalDays,
			InsightDays:       rp.InsightDays,
			AutoDeleteEnabled: rp.AutoDeleteEnabled,
		})
	}
}

// --- Export & deletion ---

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		export, err := deps.Guard.ExportUserData(r.Context(), requestUser(r))
		if err != nil {
			writeError(w, err)
			return
		}

		conversations := make([]messageDTO, len(export.Conversations))
		for i, m := range export.Conversations {
			conversations[i] = toMessageDTO(m)
		}
		insightsOut := make([]insightDTO, len(export.Insights))
		for i, in := range export.Insights {
			insightsOut[i] = toInsightDTO(in)
		}

		writeJSON(w, map[string]any{
			"conversations": conversations,
			"journal":       export.Journal,
			"insights":      insightsOut,
			"privacy":       toPrivacyDTO(export.Privacy),
			"retention": retentionDTO{
				ConversationDays:  export.Retention.ConversationDays,
				JournalDays:       export.Retention.JournalDays,
				InsightDays:       export.Retention.InsightDays,
				AutoDeleteEnabled: export.Retention.AutoDeleteEnabled,
			},
		})
	}
}

func handleDeleteAccount(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Guard.DeleteAllUserData(r.Context(), requestUser(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "account deletion incomplete: %d categories failed", len(report.Failed))
			return
		}
		writeJSON(w, map[string]any{"deleted": report.Deleted})
	}
}
