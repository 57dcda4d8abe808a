// Package contracts defines the service interfaces for LogLens.
//
// Concrete implementations live under internal/. The HTTP handlers and the
// pipeline depend only on these interfaces, so tests substitute stubs and
// alternative backends are a single line change in pkg/server.
package contracts

import (
	"context"

	"github.com/loglens/loglens/pkg/models"
)

// ── Provider ────────────────────────────────────────────────

// Provider generates text from a prompt.
// Implementations: internal/chat.LocalProvider, internal/chat.RemoteProvider.
//
// Providers that hold connections may also implement io.Closer; the chat
// engine closes a retired provider once its last in-flight call returns.
type Provider interface {
	// Name returns a short identifier used in logs and errors.
	Name() string

	// Mode returns the variant this provider implements.
	Mode() models.ProviderMode

	// Generate produces at most maxTokens tokens of text for prompt.
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// SecretResolver fetches a secret value by identifier.
// Used by the provider factory to resolve the remote API key.
type SecretResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// ── Chat Service ────────────────────────────────────────────

// ChatService is the provider-agnostic chat surface.
// Implementation: internal/chat.Engine
type ChatService interface {
	// Chat sends prompt to the active provider.
	Chat(ctx context.Context, prompt string) (string, error)

	// SwitchProvider replaces the active provider atomically.
	SwitchProvider(ctx context.Context, mode string, opts models.ProviderOptions) error

	// Status returns the active provider's mode and limits.
	Status() models.ProviderStatus
}

// ── Summaries ───────────────────────────────────────────────

// SummarizeOptions tunes a single summarization.
type SummarizeOptions struct {
	// Narrative requests a model-written narrative for the summary.
	Narrative bool
}

// SummarizerService turns a LogRecord into a Summary.
// Implementation: internal/summarizer.Summarizer
type SummarizerService interface {
	Process(ctx context.Context, record models.LogRecord, opts SummarizeOptions) (models.Summary, error)
}

// SummarySink receives every SummaryEvent produced by the pipeline.
// Implementations: internal/feed.Feed, internal/sink.NATSSink, internal/sink.WebhookSink.
type SummarySink interface {
	Name() string
	Publish(ctx context.Context, event models.SummaryEvent) error
}

// ── Watcher ─────────────────────────────────────────────────

// WatcherState exposes whether the file watcher is observing.
type WatcherState interface {
	IsRunning() bool
}
