// Package server composes the LogLens components into a runnable service.
//
// This package lives in pkg/ (not internal/) so that other binaries can
// embed the gateway and wrap its handler with their own middleware.
//
// Usage:
//
//	cfg, _ := config.Load("")
//	srv, err := server.New(ctx, cfg)
//	srv.Start(ctx)
//	defer srv.Close(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/internal/api"
	"github.com/loglens/loglens/internal/api/handlers"
	"github.com/loglens/loglens/internal/api/middleware"
	"github.com/loglens/loglens/internal/auth"
	"github.com/loglens/loglens/internal/chat"
	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/feed"
	"github.com/loglens/loglens/internal/metrics"
	"github.com/loglens/loglens/internal/pipeline"
	"github.com/loglens/loglens/internal/ratelimit"
	"github.com/loglens/loglens/internal/retention"
	"github.com/loglens/loglens/internal/secrets"
	"github.com/loglens/loglens/internal/sink"
	"github.com/loglens/loglens/internal/store"
	"github.com/loglens/loglens/internal/summarizer"
	"github.com/loglens/loglens/internal/telemetry"
	"github.com/loglens/loglens/internal/watcher"
	"github.com/loglens/loglens/pkg/contracts"
)

// Server holds the initialized LogLens service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Config   *config.Config
	Engine   *chat.Engine
	Pipeline *pipeline.Pipeline
	Feed     *feed.Feed
	Store    store.Store
	Metrics  *metrics.Metrics

	// Watcher is nil when file watching is disabled.
	Watcher *watcher.Watcher

	// Janitor is nil when store.retention is zero.
	Janitor *retention.Janitor

	limiter     ratelimit.Limiter
	closers     []io.Closer
	shutdown    telemetry.Shutdown
	stopJanitor context.CancelFunc
	janitorWG   sync.WaitGroup
}

// New initializes every component. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, err
	}
	s.shutdown = shutdown
	s.Metrics = metrics.New()

	// Chat log store
	s.Store, err = openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Retention > 0 {
		s.Janitor = retention.NewJanitor(s.Store, cfg.Store.Retention, cfg.Store.RetentionInterval)
		if cfg.Store.ArchiveDir != "" {
			s.Janitor.RegisterArchiver(retention.NewLocalFileArchiver(cfg.Store.ArchiveDir, cfg.Store.ArchiveCompress))
		}
	}

	// Chat engine
	factoryOpts := []chat.FactoryOption{}
	if resolver := newSecretResolver(ctx, cfg.AWS); resolver != nil {
		factoryOpts = append(factoryOpts, chat.WithSecretResolver(resolver))
	}
	s.Engine, err = chat.NewEngine(ctx, chat.NewFactory(factoryOpts...), cfg.Provider,
		chat.WithTimeout(cfg.ChatTimeout),
		chat.WithObserver(s.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("init chat engine: %w", err)
	}
	s.closers = append(s.closers, s.Engine)

	// Summaries
	summ := summarizer.New(s.Engine)
	s.Feed = feed.New(cfg.Sinks.FeedSize)
	sinks, err := s.openSinks(cfg.Sinks)
	if err != nil {
		return nil, err
	}
	s.Pipeline = pipeline.New(summ, sinks, pipeline.Options{
		QueueSize: cfg.Pipeline.QueueSize,
		Workers:   cfg.Pipeline.Workers,
		Narrative: cfg.Pipeline.Narrative,
	}, pipeline.WithObserver(s.Metrics))

	var watcherState contracts.WatcherState
	if cfg.Watcher.Enabled {
		s.Watcher, err = watcher.New(watcher.Options{
			Dir:         cfg.Watcher.Dir,
			Recursive:   cfg.Watcher.Recursive,
			Extensions:  cfg.Watcher.Extensions,
			Ignore:      cfg.Watcher.Ignore,
			Debounce:    cfg.Watcher.Debounce,
			QueueSize:   cfg.Watcher.QueueSize,
			MaxFileSize: cfg.Watcher.MaxFileSize,
			InitialScan: cfg.Watcher.InitialScan,
		}, s.Pipeline.Callback())
		if err != nil {
			return nil, err
		}
		watcherState = s.Watcher
	}

	// Gateway
	verifier, err := auth.NewVerifier(cfg.Auth.KeyHashes)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}
	s.limiter, err = openLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	h := handlers.New(s.Engine, summ, watcherState, s.Store, s.Feed)
	h.Switches = s.Metrics
	s.Handler = api.NewRouter(cfg, h, api.Options{
		Auth:    middleware.NewAPIKeyAuth(verifier, cfg.Auth.Header, s.Metrics),
		Limiter: s.limiter,
		Metrics: s.Metrics,
	})

	ok = true
	return s, nil
}

// Start launches the pipeline workers, the retention janitor and the
// file watcher.
func (s *Server) Start(ctx context.Context) error {
	s.Pipeline.Start(ctx)
	if s.Janitor != nil {
		jctx, cancel := context.WithCancel(ctx)
		s.stopJanitor = cancel
		s.janitorWG.Add(1)
		go func() {
			defer s.janitorWG.Done()
			s.Janitor.Start(jctx)
		}()
	}
	if s.Watcher == nil {
		log.Info().Msg("File watcher disabled")
		return nil
	}
	if err := os.MkdirAll(s.Config.Watcher.Dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	return s.Watcher.Start()
}

// Close stops the watcher, drains the pipeline and releases every
// resource. It is safe on a partially initialized Server.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.Watcher != nil {
		errs = append(errs, s.Watcher.Stop())
	}
	if s.Pipeline != nil {
		s.Pipeline.Close()
	}
	if s.stopJanitor != nil {
		s.stopJanitor()
		s.janitorWG.Wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	if s.limiter != nil {
		errs = append(errs, s.limiter.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.shutdown != nil {
		errs = append(errs, s.shutdown(ctx))
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Info().Msg("✅ In-memory chat log initialized")
		return store.NewMemoryStore(0), nil
	default:
		st, err := store.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open chat log: %w", err)
		}
		log.Info().Str("path", cfg.Path).Msg("✅ SQLite chat log initialized")
		return st, nil
	}
}

func openLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	if cfg.Backend == "redis" {
		l, err := ratelimit.NewRedisLimiter(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Limit, cfg.Window)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Int("limit", cfg.Limit).Dur("window", cfg.Window).Msg("✅ Redis rate limiter initialized")
		return l, nil
	}
	log.Info().Int("limit", cfg.Limit).Dur("window", cfg.Window).Msg("✅ In-memory rate limiter initialized")
	return ratelimit.NewMemoryLimiter(cfg.Limit, cfg.Window), nil
}

// newSecretResolver returns nil when AWS configuration cannot be loaded;
// remote providers then need a literal key.
func newSecretResolver(ctx context.Context, cfg config.AWSConfig) contracts.SecretResolver {
	var opts []secrets.Option
	if cfg.Region != "" {
		opts = append(opts, secrets.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, secrets.WithProfile(cfg.Profile))
	}
	r, err := secrets.NewAWSResolver(ctx, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("AWS Secrets Manager unavailable; apiKeySecret will be rejected")
		return nil
	}
	return r
}

func (s *Server) openSinks(cfg config.SinksConfig) ([]contracts.SummarySink, error) {
	sinks := []contracts.SummarySink{s.Feed}
	if cfg.NATSURL != "" {
		ns, err := sink.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, ns)
		sinks = append(sinks, ns)
		log.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("✅ NATS summary sink connected")
	}
	if cfg.WebhookURL != "" {
		var opts []sink.WebhookOption
		if cfg.WebhookSecret != "" {
			opts = append(opts, sink.WithSecret(cfg.WebhookSecret))
		}
		sinks = append(sinks, sink.NewWebhookSink(cfg.WebhookURL, opts...))
		log.Info().Str("url", cfg.WebhookURL).Msg("✅ Webhook summary sink configured")
	}
	return sinks, nil
}
