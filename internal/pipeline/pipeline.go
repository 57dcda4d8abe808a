// Package pipeline connects the file watcher to the summarizer and the
// summary sinks through a bounded queue.
//
// Records are sharded across workers by the hash of their file path, so
// records for one file are summarized and published in arrival order
// while different files proceed in parallel.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("pipeline: closed")

// Defaults applied to zero-valued options.
const (
	DefaultQueueSize   = 128
	DefaultWorkers     = 4
	DefaultSinkTimeout = 10 * time.Second
)

// Options configures a Pipeline.
type Options struct {
	QueueSize   int
	Workers     int
	Narrative   bool
	SinkTimeout time.Duration
}

// Observer receives pipeline measurements.
type Observer interface {
	ObserveSummary(d time.Duration, narrativeErr error)
	ObserveSink(sink string, err error)
}

// Pipeline summarizes queued records and publishes the results.
type Pipeline struct {
	summarizer contracts.SummarizerService
	sinks      []contracts.SummarySink
	opts       Options
	observer   Observer

	shards []chan models.LogRecord
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers o for measurements.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New creates a stopped pipeline.
func New(s contracts.SummarizerService, sinks []contracts.SummarySink, opts Options, options ...Option) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}

	perShard := opts.QueueSize / opts.Workers
	if perShard < 1 {
		perShard = 1
	}
	p := &Pipeline{summarizer: s, sinks: sinks, opts: opts}
	for _, o := range options {
		o(p)
	}
	p.shards = make([]chan models.LogRecord, opts.Workers)
	for i := range p.shards {
		p.shards[i] = make(chan models.LogRecord, perShard)
	}
	return p
}

// Start launches the workers. Calling Start more than once has no effect.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i, shard := range p.shards {
		p.wg.Add(1)
		go func(id int, in <-chan models.LogRecord) {
			defer p.wg.Done()
			for rec := range in {
				p.process(ctx, rec)
			}
			log.Debug().Int("worker", id).Msg("pipeline worker stopped")
		}(i, shard)
	}
	log.Info().Int("workers", len(p.shards)).Int("queue", p.opts.QueueSize).Msg("summary pipeline started")
}

// Enqueue hands rec to the worker owning its file path. It blocks while
// that worker's queue is full, until ctx is done.
func (p *Pipeline) Enqueue(ctx context.Context, rec models.LogRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	shard := p.shards[xxhash.Sum64String(rec.FilePath)%uint64(len(p.shards))]
	select {
	case shard <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records, lets the workers drain what is queued
// and waits for them.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, shard := range p.shards {
		close(shard)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pipeline) process(ctx context.Context, rec models.LogRecord) {
	start := time.Now()
	summary, err := p.summarizer.Process(ctx, rec, contracts.SummarizeOptions{Narrative: p.opts.Narrative})
	if p.observer != nil {
		p.observer.ObserveSummary(time.Since(start), err)
	}

	event := models.SummaryEvent{
		ID:           uuid.NewString(),
		FilePath:     rec.FilePath,
		ObservedAt:   rec.ObservedAt,
		SummarizedAt: time.Now().UTC(),
		Summary:      summary,
	}
	if err != nil {
		event.NarrativeError = err.Error()
	}

	log.Info().
		Str("file", rec.FilePath).
		Int("errors", summary.ErrorCount).
		Int("warnings", summary.WarningCount).
		Int("events", len(summary.KeyEvents)).
		Dur("took", time.Since(start)).
		Msg("log summarized")

	p.publish(ctx, event)
}

// publish sends event to every sink concurrently and waits for all of
// them, so one slow or failing sink never holds back the others.
func (p *Pipeline) publish(ctx context.Context, event models.SummaryEvent) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.SinkTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range p.sinks {
		wg.Add(1)
		go func(s contracts.SummarySink) {
			defer wg.Done()
			err := s.Publish(ctx, event)
			if err != nil {
				log.Warn().Err(err).Str("sink", s.Name()).Str("event", event.ID).Msg("summary sink failed")
			}
			if p.observer != nil {
				p.observer.ObserveSink(s.Name(), err)
			}
		}(s)
	}
	wg.Wait()
}

// Callback adapts Enqueue to the watcher callback signature.
func (p *Pipeline) Callback() func(ctx context.Context, rec models.LogRecord) error {
	return p.Enqueue
}
