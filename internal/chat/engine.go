// Package chat implements the provider-agnostic chat engine.
//
// The engine holds exactly one active provider. SwitchProvider builds the
// replacement first and swaps it in atomically; a failed switch leaves the
// previous provider active. Calls already in flight finish on the provider
// they started with, which is closed once its last call returns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

// DefaultTimeout bounds a single Chat call when none is configured.
const DefaultTimeout = 60 * time.Second

// Observer is notified after every Chat call.
type Observer interface {
	ObserveChat(mode models.ProviderMode, d time.Duration, err error)
}

// binding pairs a provider with the configuration it was built from and
// tracks the calls currently using it.
type binding struct {
	provider contracts.Provider
	cfg      models.ProviderConfig

	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
}

func (b *binding) release() {
	if b.refs.Add(-1) == 0 && b.retired.Load() {
		b.close()
	}
}

func (b *binding) retire() {
	b.retired.Store(true)
	if b.refs.Load() == 0 {
		b.close()
	}
}

func (b *binding) close() {
	b.closeOnce.Do(func() {
		c, ok := b.provider.(io.Closer)
		if !ok {
			return
		}
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("provider", b.provider.Name()).Msg("provider close failed")
		}
	})
}

// Engine routes chat prompts to the active provider.
type Engine struct {
	factory  ProviderFactory
	timeout  time.Duration
	observer Observer
	tracer   trace.Tracer

	active   atomic.Pointer[binding]
	switchMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout bounds each Chat call.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithObserver registers o to receive call outcomes.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// NewEngine builds the initial provider from cfg. It returns the
// factory's error unchanged when cfg is unusable.
func NewEngine(ctx context.Context, factory ProviderFactory, cfg models.ProviderConfig, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		factory: factory,
		timeout: DefaultTimeout,
		tracer:  otel.Tracer("loglens/chat"),
	}
	for _, o := range opts {
		o(e)
	}

	if mode, ok := models.ParseProviderMode(string(cfg.Mode)); ok {
		cfg.Mode = mode
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = models.DefaultMaxTokens
	}
	p, err := factory.CreateProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.active.Store(&binding{provider: p, cfg: cfg})

	log.Info().Str("mode", string(cfg.Mode)).Str("provider", p.Name()).Msg("chat engine ready")
	return e, nil
}

// acquire pins the active binding for the duration of one call.
func (e *Engine) acquire() *binding {
	for {
		b := e.active.Load()
		b.refs.Add(1)
		if !b.retired.Load() || e.active.Load() == b {
			return b
		}
		// Lost a race with SwitchProvider; retry on the new binding.
		b.release()
	}
}

type generateResult struct {
	text string
	err  error
}

// Chat sends prompt to the active provider. Failures are returned as
// *models.ProviderError; an expired timeout has category timeout.
func (e *Engine) Chat(ctx context.Context, prompt string) (string, error) {
	b := e.acquire()
	mode := b.provider.Mode()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "chat.generate", trace.WithAttributes(
		attribute.String("chat.provider", b.provider.Name()),
		attribute.String("chat.mode", string(mode)),
		attribute.Int("chat.max_tokens", b.cfg.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	done := make(chan generateResult, 1)
	go func() {
		defer b.release()
		text, err := b.provider.Generate(ctx, prompt, b.cfg.MaxTokens)
		done <- generateResult{text: text, err: err}
	}()

	var res generateResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		res.err = classify(ctx, b.provider.Name(), res.err)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	if e.observer != nil {
		e.observer.ObserveChat(mode, time.Since(start), res.err)
	}
	if res.err != nil {
		return "", res.err
	}
	return res.text, nil
}

// classify normalizes any Generate failure into a *models.ProviderError.
func classify(ctx context.Context, name string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewProviderError(name, models.CategoryTimeout, err)
	}
	if pe, ok := models.AsProviderError(err); ok {
		return pe
	}
	return models.NewProviderError(name, transportCategory(err), err)
}

// SwitchProvider replaces the active provider with one built from the
// current configuration overlaid with opts.
func (e *Engine) SwitchProvider(ctx context.Context, mode string, opts models.ProviderOptions) error {
	m, ok := models.ParseProviderMode(mode)
	if !ok {
		return &models.ConfigurationError{Field: "mode", Message: fmt.Sprintf("unknown provider mode %q", mode)}
	}

	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	cur := e.active.Load()
	cfg := opts.Apply(cur.cfg, m)
	if cfg.MaxTokens <= 0 {
		return &models.ConfigurationError{Field: "maxTokens", Message: "must be positive"}
	}

	p, err := e.factory.CreateProvider(ctx, cfg)
	if err != nil {
		return err
	}

	next := &binding{provider: p, cfg: cfg}
	prev := e.active.Swap(next)
	prev.retire()

	log.Info().
		Str("from", prev.provider.Name()).
		Str("to", p.Name()).
		Str("mode", string(m)).
		Msg("provider switched")
	return nil
}

// Status reports the active provider.
func (e *Engine) Status() models.ProviderStatus {
	b := e.active.Load()
	return models.ProviderStatus{
		Mode:      b.provider.Mode(),
		Provider:  b.provider.Name(),
		MaxTokens: b.cfg.MaxTokens,
	}
}

// Close retires the active provider. Chat must not be called afterwards.
func (e *Engine) Close() error {
	e.switchMu.Lock()
	defer e.switchMu.Unlock()
	e.active.Load().retire()
	return nil
}

var _ contracts.ChatService = (*Engine)(nil)
