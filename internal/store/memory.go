package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loglens/loglens/pkg/models"
)

// MemoryStore keeps the most recent chat entries in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.ChatLogEntry
	max     int
}

// NewMemoryStore creates a store retaining up to max entries.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max}
}

func (m *MemoryStore) AppendChat(_ context.Context, entry *models.ChatLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemoryStore) RecentChats(_ context.Context, limit int) ([]models.ChatLogEntry, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.entries)
	if limit > n {
		limit = n
	}
	out := make([]models.ChatLogEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryStore) ChatsBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ChatLogEntry, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.ChatLogEntry{}
	for _, e := range m.entries {
		if len(out) == limit {
			break
		}
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteChats(_ context.Context, ids []string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	n := len(m.entries) - len(kept)
	m.entries = kept
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
