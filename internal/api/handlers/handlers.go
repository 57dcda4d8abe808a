// Package handlers implements the HTTP handlers for the LogLens gateway.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/loglens/loglens/internal/feed"
	"github.com/loglens/loglens/internal/store"
	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

// SwitchObserver counts provider switch attempts.
type SwitchObserver interface {
	ObserveSwitch(mode string, err error)
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine     contracts.ChatService
	Summarizer contracts.SummarizerService
	Watcher    contracts.WatcherState
	Store      store.Store
	Feed       *feed.Feed
	Switches   SwitchObserver

	upgrader websocket.Upgrader
}

// New creates a Handlers instance. watcher may be nil when file watching
// is disabled.
func New(chat contracts.ChatService, s contracts.SummarizerService, watcher contracts.WatcherState, st store.Store, f *feed.Feed) *Handlers {
	return &Handlers{
		Engine:     chat,
		Summarizer: s,
		Watcher:    watcher,
		Store:      st,
		Feed:       f,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps err to a status and writes it. Provider failures
// carry their category.
func respondFailure(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if pe, ok := models.AsProviderError(err); ok {
		respondJSON(w, status, map[string]string{
			"error":    err.Error(),
			"category": string(pe.Category),
			"provider": pe.Provider,
		})
		return
	}
	respondError(w, status, err.Error())
}

// statusForError is the single mapping from domain errors to HTTP statuses.
func statusForError(err error) int {
	if models.IsConfigurationError(err) {
		return http.StatusBadRequest
	}
	if pe, ok := models.AsProviderError(err); ok {
		if pe.Category == models.CategoryTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

const maxBodyBytes = 4 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
