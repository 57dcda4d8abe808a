// Package store persists the chat interaction log served on /logs.
// SQLite is the default backend; the in-memory backend is used by tests
// and by deployments that opt out of disk state.
package store

import (
	"context"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// DefaultLimit is the number of entries returned by Recent when the
// caller passes a non-positive limit.
const DefaultLimit = 100

// Store is the storage interface for chat interactions. Handler code
// depends on this interface only.
type Store interface {
	// AppendChat records one prompt/response pair. ID and CreatedAt are
	// filled in when empty.
	AppendChat(ctx context.Context, entry *models.ChatLogEntry) error

	// RecentChats returns up to limit entries, newest first.
	RecentChats(ctx context.Context, limit int) ([]models.ChatLogEntry, error)

	// ChatsBefore returns up to limit entries created before cutoff,
	// oldest first.
	ChatsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ChatLogEntry, error)

	// DeleteChats removes the entries with the given IDs and reports how
	// many existed.
	DeleteChats(ctx context.Context, ids []string) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
