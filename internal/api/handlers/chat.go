package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	pkgmw "github.com/loglens/loglens/pkg/middleware"
	"github.com/loglens/loglens/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Chat Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type chatRequest struct {
	Prompt string `json:"prompt"`
}

// Chat forwards a prompt to the active provider.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	mode := h.Engine.Status().Mode
	response, err := h.Engine.Chat(r.Context(), req.Prompt)
	h.recordChat(r.Context(), req.Prompt, response, mode, err)
	if err != nil {
		log.Warn().Err(err).Str("subject", pkgmw.Subject(r.Context())).Msg("Chat failed")
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"response": response})
}

// recordChat appends the interaction to the chat log. Store failures are
// logged and never fail the request.
func (h *Handlers) recordChat(ctx context.Context, prompt, response string, mode models.ProviderMode, chatErr error) {
	if h.Store == nil {
		return
	}
	entry := &models.ChatLogEntry{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Response:  response,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
	if chatErr != nil {
		entry.Error = chatErr.Error()
	}
	if err := h.Store.AppendChat(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("id", entry.ID).Msg("Failed to record chat")
	}
}

type switchRequest struct {
	Mode string `json:"mode"`
	models.ProviderOptions
}

// SwitchProvider replaces the active provider.
func (h *Handlers) SwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.Engine.SwitchProvider(r.Context(), req.Mode, req.ProviderOptions)
	if h.Switches != nil {
		h.Switches.ObserveSwitch(req.Mode, err)
	}
	if err != nil {
		log.Warn().Err(err).Str("mode", req.Mode).Msg("Provider switch rejected")
		respondFailure(w, err)
		return
	}

	status := h.Engine.Status()
	log.Info().Str("mode", string(status.Mode)).Str("provider", status.Provider).
		Str("subject", pkgmw.Subject(r.Context())).Msg("Provider switched")
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Switched to " + string(status.Mode) + " provider",
		"mode":    string(status.Mode),
	})
}

// Status reports the active provider and watcher state.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status := h.Engine.Status()
	running := false
	if h.Watcher != nil {
		running = h.Watcher.IsRunning()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"mode":           status.Mode,
		"watcherRunning": running,
		"provider":       status.Provider,
		"maxTokens":      status.MaxTokens,
	})
}

// Logs returns the most recent chat interactions, newest first.
func (h *Handlers) Logs(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		respondJSON(w, http.StatusOK, []models.ChatLogEntry{})
		return
	}
	entries, err := h.Store.RecentChats(r.Context(), 100)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read chat log")
		respondError(w, http.StatusInternalServerError, "failed to read chat log")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
