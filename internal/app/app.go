// Package app wires all dialcoach subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithProvider, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dialcoach/dialcoach/internal/catalog"
	"github.com/dialcoach/dialcoach/internal/config"
	"github.com/dialcoach/dialcoach/internal/health"
	"github.com/dialcoach/dialcoach/internal/match"
	"github.com/dialcoach/dialcoach/internal/observe"
	"github.com/dialcoach/dialcoach/internal/outcome"
	"github.com/dialcoach/dialcoach/internal/recommend"
	"github.com/dialcoach/dialcoach/internal/server"
	"github.com/dialcoach/dialcoach/internal/session"
	"github.com/dialcoach/dialcoach/internal/stats"
	postgresstats "github.com/dialcoach/dialcoach/internal/stats/postgres"
	sqlitestats "github.com/dialcoach/dialcoach/internal/stats/sqlite"
	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
)

// App owns all subsystem lifetimes for the dialcoach server.
type App struct {
	cfg *config.Config

	catalog  *catalog.Catalog
	store    stats.Store
	pinger   health.Pinger
	provider transcribe.Provider
	metrics  *observe.Metrics
	manager  *session.Manager
	server   *server.Server

	// logLevel, when set, is retargeted on config hot reloads.
	logLevel *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a statistics store instead of creating one from config.
func WithStore(s stats.Store) Option {
	return func(a *App) { a.store = s }
}

// WithProvider injects a transcription provider instead of creating one via
// the registry.
func WithProvider(p transcribe.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config hot reloads can retarget it.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The registry supplies
// transcription provider factories; main registers the built-ins. Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	a.catalog = cat
	slog.Info("catalog loaded", "path", cfg.Catalog.Path, "openers", cat.Len())

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initProvider(reg); err != nil {
		return nil, fmt.Errorf("app: init provider: %w", err)
	}

	matcher, engine, classifier, err := buildComponents(cat, cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build components: %w", err)
	}

	a.manager = session.NewManager(session.ManagerConfig{
		Matcher:    matcher,
		Engine:     engine,
		Classifier: classifier,
		Store:      a.store,
		Provider:   a.provider,
		Stream: transcribe.StreamConfig{
			SampleRate: cfg.Transcription.SampleRate,
			Language:   cfg.Transcription.Language,
			WordBoost:  cfg.Transcription.WordBoost,
		},
	})

	a.server = server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Manager:    a.manager,
		Store:      a.store,
		Metrics:    a.metrics,
		Health:     health.New(health.StoreChecker(a.pinger)),
	})

	return a, nil
}

// initStore creates the statistics backend named in the config unless one was
// injected. SQLite and PostgreSQL stores register closers and a health pinger.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.Storage.Backend {
	case config.StorageSQLite:
		store, err := sqlitestats.Open(a.cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		a.store = store
		a.pinger = store
		a.closers = append(a.closers, store.Close)
		slog.Info("statistics store ready", "backend", "sqlite", "path", a.cfg.Storage.SQLitePath)

	case config.StoragePostgres:
		store, err := postgresstats.NewStore(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		a.pinger = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("statistics store ready", "backend", "postgres")

	default:
		a.store = stats.NewMemStore()
		slog.Info("statistics store ready", "backend", "memory")
	}
	return nil
}

// initProvider instantiates the configured transcription provider unless one
// was injected. An empty provider name leaves transcription disabled and
// sessions in manual mode.
func (a *App) initProvider(reg *config.Registry) error {
	if a.provider != nil || a.cfg.Transcription.Name == "" {
		return nil
	}

	p, err := reg.CreateTranscribe(a.cfg.Transcription)
	if err != nil {
		return fmt.Errorf("create transcription provider %q: %w", a.cfg.Transcription.Name, err)
	}
	a.provider = p
	slog.Info("transcription provider created", "name", a.cfg.Transcription.Name)
	return nil
}

// Manager returns the session manager, used by tests and the config watcher.
func (a *App) Manager() *session.Manager {
	return a.manager
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	return g.Wait()
}

// ApplyConfig applies a hot-reloaded config. Only the log level, matching
// thresholds, recommendation policy, and outcome classification are applied
// live; storage, catalog, server address, and transcription changes require a
// restart. On a rebuild failure the previous components stay in place.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.MatchingChanged || d.RecommendChanged || d.OutcomeChanged {
		matcher, engine, classifier, err := buildComponents(a.catalog, new)
		if err != nil {
			slog.Error("config reload: rebuild failed, keeping previous settings", "err", err)
			return
		}
		a.manager.Reconfigure(matcher, engine, classifier)
		slog.Info("coaching components reconfigured",
			"matching", d.MatchingChanged,
			"recommend", d.RecommendChanged,
			"outcome", d.OutcomeChanged,
		)
	}

	a.cfg = new
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.manager.IsActive() {
			if _, err := a.manager.End(ctx); err != nil {
				slog.Warn("failed to end active session", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// buildComponents constructs the matcher, engine, and classifier from the
// config. Zero config values fall back to each component's built-in default.
func buildComponents(cat *catalog.Catalog, cfg *config.Config) (*match.Matcher, *recommend.Engine, *outcome.Classifier, error) {
	var matchOpts []match.Option
	if cfg.Matching.SimilarityThreshold != 0 {
		matchOpts = append(matchOpts, match.WithSimilarityThreshold(cfg.Matching.SimilarityThreshold))
	}
	if cfg.Matching.AmbiguityThreshold != 0 {
		matchOpts = append(matchOpts, match.WithAmbiguityThreshold(cfg.Matching.AmbiguityThreshold))
	}
	matcher, err := match.New(cat, matchOpts...)
	if err != nil {
		return nil, nil, nil, err
	}

	policy := recommend.DefaultPolicy()
	if cfg.Recommend.MinAttemptsForFairTesting != 0 {
		policy.MinAttemptsForFairTesting = cfg.Recommend.MinAttemptsForFairTesting
	}
	if cfg.Recommend.MinAttemptsForConfidence != 0 {
		policy.MinAttemptsForConfidence = cfg.Recommend.MinAttemptsForConfidence
	}
	if cfg.Recommend.PerformanceDeclineThreshold != 0 {
		policy.PerformanceDeclineThreshold = cfg.Recommend.PerformanceDeclineThreshold
	}
	engine, err := recommend.New(cat, recommend.WithPolicy(policy))
	if err != nil {
		return nil, nil, nil, err
	}

	var outcomeOpts []outcome.Option
	if cfg.Outcome.MinStaySeconds != 0 {
		outcomeOpts = append(outcomeOpts, outcome.WithMinStayDuration(time.Duration(cfg.Outcome.MinStaySeconds)*time.Second))
	}
	classifier := outcome.New(outcomeOpts...)

	return matcher, engine, classifier, nil
}

// SlogLevel maps a config log level onto its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
