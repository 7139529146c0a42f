// Package app wires all bondvox subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP (and the optional background loops) until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithSampleStore,
// WithNotifier, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/bondvox/internal/config"
	"github.com/MrWong99/bondvox/internal/health"
	"github.com/MrWong99/bondvox/internal/mcpserver"
	"github.com/MrWong99/bondvox/internal/notify"
	"github.com/MrWong99/bondvox/internal/observe"
	"github.com/MrWong99/bondvox/internal/pipeline"
	"github.com/MrWong99/bondvox/internal/resilience"
	"github.com/MrWong99/bondvox/internal/samples"
	"github.com/MrWong99/bondvox/internal/server"
)

// shutdownGrace bounds graceful HTTP shutdown once Run's context ends.
const shutdownGrace = 10 * time.Second

// runner is a background loop started by [App.Run].
type runner interface {
	Run(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar
	version   string

	store          samples.Store
	notifier       notify.Notifier
	metricsHandler http.Handler
	listener       net.Listener

	watchPath     string
	watchInterval time.Duration
	watcher       *config.Watcher

	pipeline *pipeline.Pipeline
	mcp      *mcpserver.Server
	srv      *http.Server
	runners  []runner

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSampleStore injects a sample store instead of creating one from config.
func WithSampleStore(s samples.Store) Option {
	return func(a *App) { a.store = s }
}

// WithNotifier injects a quote notifier instead of creating one from config.
// A notifier that also has a Run(ctx) error method is started by [App.Run].
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithLevelVar lets hot reload change the log level of the handler built
// around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithConfigWatch polls the config file at path and applies hot-reloadable
// changes. interval <= 0 uses the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchInterval = interval
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via [BuildProviders]).
//
// New performs all initialisation synchronously: sample store connection and
// migration, notifier setup, quote pipeline, MCP server and HTTP routes.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Sample store ──────────────────────────────────────────────────
	if err := a.initSamples(ctx); err != nil {
		return nil, fmt.Errorf("app: init samples: %w", err)
	}

	// ── 2. Notifier ──────────────────────────────────────────────────────
	if err := a.initNotifier(); err != nil {
		return nil, fmt.Errorf("app: init notifier: %w", err)
	}

	// ── 3. Quote pipeline ────────────────────────────────────────────────
	a.initPipeline()

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.watchPath != "" {
		var wopts []config.WatcherOption
		if a.watchInterval > 0 {
			wopts = append(wopts, config.WithInterval(a.watchInterval))
		}
		w, err := config.NewWatcher(a.watchPath, a.applyConfig, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: init watcher: %w", err)
		}
		a.watcher = w
		a.runners = append(a.runners, w)
	}

	// ── 5. MCP + HTTP ────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSamples sets up the configured sample store unless one was injected.
func (a *App) initSamples(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.Samples.Backend {
	case config.SamplesDisabled:
		return nil

	case config.SamplesFile:
		a.store = samples.NewFileStore(a.cfg.Samples.Path)
		slog.Info("sample store ready", "backend", "file", "path", a.cfg.Samples.Path)
		return nil

	case config.SamplesPostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Samples.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store := samples.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		slog.Info("sample store ready", "backend", "postgres")
		return nil

	default:
		return fmt.Errorf("unknown sample backend %q", a.cfg.Samples.Backend)
	}
}

// initNotifier creates the Telegram notifier unless one was injected.
func (a *App) initNotifier() error {
	if a.notifier == nil && a.cfg.Notify.Telegram != nil {
		tg := a.cfg.Notify.Telegram
		n, err := notify.NewTelegram(tg.Token, tg.APIEndpoint, tg.ChatID, notify.WithMetrics(a.metrics))
		if err != nil {
			return err
		}
		a.notifier = n
	}
	if r, ok := a.notifier.(runner); ok {
		a.runners = append(a.runners, r)
	}
	return nil
}

// initPipeline builds the engine, the correction stage and the pipeline.
func (a *App) initPipeline() {
	engine := BuildEngine(a.cfg.Lexicon)

	opts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithCorrector(buildCorrector(a.cfg.Correction, engine.Lexicon(), a.providers.LLM)),
		pipeline.WithLanguage(a.cfg.Providers.STT.LanguageOrDefault()),
	}
	if a.providers.STT != nil {
		opts = append(opts, pipeline.WithTranscriber(a.providers.STTName, a.providers.STT))
	}
	if a.store != nil {
		opts = append(opts, pipeline.WithSamples(a.store))
	}
	if a.notifier != nil {
		opts = append(opts, pipeline.WithNotifier(a.notifier))
	}
	a.pipeline = pipeline.New(engine, opts...)
	slog.Info("quote engine ready",
		"instruments", len(engine.Lexicon().Instruments()),
		"aliases", len(engine.Lexicon().Vocabulary()),
		"correction", a.cfg.Correction.Enabled(),
	)
}

// initHTTP builds the route table and the http.Server.
func (a *App) initHTTP() {
	a.mcp = mcpserver.New(a.pipeline, mcpserver.WithVersion(a.version))

	sopts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithMaxUploadBytes(a.cfg.Server.UploadLimit()),
		server.WithHealth(health.New(a.readinessChecks()...)),
	}
	if a.metricsHandler != nil {
		sopts = append(sopts, server.WithMetricsHandler(a.metricsHandler))
	}
	if a.cfg.MCP.Enabled {
		sopts = append(sopts, server.WithMCP(a.cfg.MCP.PathOrDefault(), a.mcp.Handler()))
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}
	a.srv = &http.Server{
		Addr:              addr,
		Handler:           server.New(a.pipeline, sopts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// readinessChecks returns one checker per external dependency.
func (a *App) readinessChecks() []health.Checker {
	var checks []health.Checker
	if a.store != nil {
		checks = append(checks, health.PingChecker("samples", a.store))
	}
	if s, ok := a.providers.STT.(statuser); ok {
		checks = append(checks, health.Checker{Name: "stt", Check: func(context.Context) error {
			return anyAvailable(s.Status())
		}})
	}
	return checks
}

// anyAvailable fails when every backend's breaker is open.
func anyAvailable(entries []resilience.EntryStatus) error {
	for _, e := range entries {
		if e.State != resilience.StateOpen {
			return nil
		}
	}
	return errors.New("all backends have an open circuit")
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.srv.Handler }

// Pipeline returns the quote pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// MCP returns the MCP tool server, also usable over stdio.
func (a *App) MCP() *mcpserver.Server { return a.mcp }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// applyConfig is the watcher callback. It applies the hot-reloadable parts
// of new and logs sections that need a restart.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.LexiconChanged || d.CorrectionChanged {
		engine := BuildEngine(new.Lexicon)
		a.pipeline.Swap(engine, buildCorrector(new.Correction, engine.Lexicon(), a.providers.LLM))
		slog.Info("quote engine reloaded",
			"instruments", len(engine.Lexicon().Instruments()),
			"aliases", len(engine.Lexicon().Vocabulary()),
			"correction", new.Correction.Enabled(),
		)
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config section changed, restart required to apply", "section", section)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and the background loops and blocks until ctx is
// cancelled or one of them fails. A cancelled context is a clean exit and
// returns nil.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.srv.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.srv.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	for _, r := range a.runners {
		g.Go(func() error { return r.Run(gctx) })
	}

	slog.Info("app running", "addr", ln.Addr().String(), "mcp", a.cfg.MCP.Enabled)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown waits for pending samples and notifications, then tears down all
// subsystems. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}

		done := make(chan struct{})
		go func() {
			a.pipeline.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while flushing side effects")
			shutdownErr = ctx.Err()
			return
		}

		// Run closers in order.
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
