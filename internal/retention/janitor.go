// Package retention ages out the chat log. A Janitor periodically finds
// entries older than the configured maximum age, hands them to an
// Archiver when one is registered, and deletes them from the store.
// Entries are never deleted when archiving them failed.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/internal/store"
	"github.com/loglens/loglens/pkg/models"
)

// DefaultArchiveBatchSize is the max entries per archive write.
const DefaultArchiveBatchSize = 5000

// Archiver persists expired chat log entries somewhere durable.
type Archiver interface {
	Kind() string
	ArchiveChats(ctx context.Context, entries []models.ChatLogEntry) (uri string, err error)
	HealthCheck(ctx context.Context) error
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Archived int
	Purged   int
	URIs     []string
	Errors   []error
}

// Janitor periodically archives and purges expired chat log entries.
type Janitor struct {
	store     store.Store
	maxAge    time.Duration
	interval  time.Duration
	batchSize int
	archiver  Archiver
}

// NewJanitor creates a janitor that removes entries older than maxAge
// every interval.
func NewJanitor(s store.Store, maxAge, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		store:     s,
		maxAge:    maxAge,
		interval:  interval,
		batchSize: DefaultArchiveBatchSize,
	}
}

// RegisterArchiver switches the janitor from purge-only to
// archive-then-purge.
func (j *Janitor) RegisterArchiver(a Archiver) {
	j.archiver = a
	log.Info().Str("kind", a.Kind()).Msg("Archive driver registered")
}

// SetBatchSize overrides DefaultArchiveBatchSize.
func (j *Janitor) SetBatchSize(n int) {
	if n > 0 {
		j.batchSize = n
	}
}

// Start runs retention cycles until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	ev := log.Info().
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge)
	if j.archiver != nil {
		ev = ev.Str("archiver", j.archiver.Kind())
	}
	ev.Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	if j.maxAge <= 0 {
		return stats
	}
	start := time.Now()
	cutoff := start.Add(-j.maxAge)

	for ctx.Err() == nil {
		expired, err := j.store.ChatsBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("list expired chat logs: %w", err))
			break
		}
		if len(expired) == 0 {
			break
		}
		if !j.processBatch(ctx, expired, &stats) {
			break
		}
		if len(expired) < j.batchSize {
			break
		}
	}

	for _, e := range stats.Errors {
		log.Warn().Err(e).Msg("Retention cycle error")
	}
	if stats.Purged > 0 || stats.Archived > 0 {
		log.Info().
			Int("purged", stats.Purged).
			Int("archived", stats.Archived).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
	return stats
}

// processBatch archives (when configured) and purges one batch. It
// returns false when the cycle should stop.
func (j *Janitor) processBatch(ctx context.Context, batch []models.ChatLogEntry, stats *CycleStats) bool {
	if j.archiver != nil {
		uri, err := j.archiver.ArchiveChats(ctx, batch)
		if err != nil {
			log.Warn().Err(err).
				Str("backend", j.archiver.Kind()).
				Int("batch_size", len(batch)).
				Msg("Archive failed, skipping purge")
			stats.Errors = append(stats.Errors, &archiveError{backend: j.archiver.Kind(), err: err})
			return false
		}
		stats.Archived += len(batch)
		stats.URIs = append(stats.URIs, uri)
	}

	ids := make([]string, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	n, err := j.store.DeleteChats(ctx, ids)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Errorf("purge chat logs: %w", err))
		return false
	}
	stats.Purged += n
	return n > 0
}

type archiveError struct {
	backend string
	err     error
}

func (e *archiveError) Error() string {
	return "archive driver " + e.backend + ": " + e.err.Error()
}

func (e *archiveError) Unwrap() error { return e.err }

// IsArchiveError reports whether err came from the archive backend.
func IsArchiveError(err error) bool {
	var ae *archiveError
	return errors.As(err, &ae)
}
