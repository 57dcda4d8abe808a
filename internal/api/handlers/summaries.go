package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Summary Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type summarizeRequest struct {
	// Content is either a JSON string (raw log text) or any other JSON
	// value (structured log content).
	Content   json.RawMessage `json:"content"`
	FilePath  string          `json:"filePath"`
	Narrative bool            `json:"narrative"`
}

// Summarize runs the summarizer over inline content. The result is returned
// to the caller only; it is not published to the summary sinks.
func (h *Handlers) Summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	content, ok := parseContent(req.Content)
	if !ok {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	path := req.FilePath
	if path == "" {
		path = "inline"
	}
	record := models.LogRecord{
		ID:         uuid.New().String(),
		FilePath:   path,
		Content:    content,
		ObservedAt: time.Now().UTC(),
	}

	summary, err := h.Summarizer.Process(r.Context(), record, contracts.SummarizeOptions{Narrative: req.Narrative})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func parseContent(raw json.RawMessage) (models.LogContent, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return models.LogContent{}, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return models.LogContent{Text: text}, text != ""
	}
	structured, err := models.DecodeJSON(raw)
	if err != nil {
		return models.LogContent{}, false
	}
	return models.LogContent{Text: string(raw), Structured: structured}, true
}

// Summaries returns the most recent pipeline summaries, oldest first.
func (h *Handlers) Summaries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	events := h.Feed.Recent(limit)
	if events == nil {
		events = []models.SummaryEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}
