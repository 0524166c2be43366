// Package server builds the application's dependencies from configuration and
// runs the HTTP server and crawl poller until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/api"
	"github.com/JakeFAU/site-ingest/internal/clock/system"
	"github.com/JakeFAU/site-ingest/internal/config"
	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/engine"
	"github.com/JakeFAU/site-ingest/internal/fetcher/auto"
	collyfetcher "github.com/JakeFAU/site-ingest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/site-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/site-ingest/internal/hash/sha256"
	"github.com/JakeFAU/site-ingest/internal/headless/detector"
	"github.com/JakeFAU/site-ingest/internal/id/uuid"
	"github.com/JakeFAU/site-ingest/internal/logging"
	"github.com/JakeFAU/site-ingest/internal/orchestrator"
	"github.com/JakeFAU/site-ingest/internal/poller"
	"github.com/JakeFAU/site-ingest/internal/storage/gcs"
	"github.com/JakeFAU/site-ingest/internal/storage/local"
	"github.com/JakeFAU/site-ingest/internal/storage/memory"
	"github.com/JakeFAU/site-ingest/internal/storage/postgres"
	"github.com/JakeFAU/site-ingest/internal/summarizer"
	"github.com/JakeFAU/site-ingest/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        crawler.SiteStore
	orchestrator *orchestrator.Orchestrator
	poller       *poller.Poller
	apiServer    *api.Server
	ready        api.ReadyFunc
	closers      []func(context.Context) error
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Orchestrator returns the crawl orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Option adjusts Build.
type Option func(*buildOptions)

type buildOptions struct {
	forceMemory bool
}

// WithMemoryStore ignores database settings and keeps sites in memory.
func WithMemoryStore() Option {
	return func(o *buildOptions) { o.forceMemory = true }
}

// Build creates the application's dependencies. On error everything already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (app *App, err error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeAll(context.WithoutCancel(ctx))
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("renderer", cfg.Renderer.Mode),
		zap.String("summarizer", cfg.Summarizer.Provider),
		zap.String("snapshots", cfg.Snapshots.Backend),
	)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.addCloser(tp.Shutdown)
	}

	if o.forceMemory {
		app.store = memory.NewSiteStore()
	} else if err := setupStore(ctx, app); err != nil {
		return nil, err
	}

	blobStore, err := setupSnapshots(ctx, app)
	if err != nil {
		return nil, err
	}

	renderer, err := setupRenderer(app)
	if err != nil {
		return nil, err
	}

	sum, err := setupSummarizer(ctx, app)
	if err != nil {
		return nil, err
	}

	extractor := engine.New(renderer, engine.Config{
		RootTimeout: cfg.RootTimeout(),
		PageTimeout: cfg.PageTimeout(),
	}, logger.Named("engine"))

	app.orchestrator = orchestrator.New(
		app.store,
		extractor,
		sum,
		blobStore,
		sha256.New(),
		system.New(),
		uuid.New(),
		orchestrator.Config{
			MaxPages:       cfg.Crawl.MaxPages,
			FallbackChars:  cfg.Summarizer.FallbackChars,
			SnapshotPrefix: cfg.Snapshots.Prefix,
		},
		logger.Named("orchestrator"),
	)
	app.poller = poller.New(app.store, app.orchestrator, poller.Config{Interval: cfg.PollInterval()}, logger.Named("poller"))
	app.apiServer = api.NewServer(app.orchestrator, app.ready, *cfg, logger.Named("api"))
	return app, nil
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func setupStore(ctx context.Context, app *App) error {
	dbCfg := app.cfg.Database
	if dbCfg.DSN == "" {
		app.logger.Warn("no database DSN configured, using in-memory site store")
		app.store = memory.NewSiteStore()
		return nil
	}
	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:             dbCfg.DSN,
		MaxConns:        dbCfg.MaxConns,
		MinConns:        dbCfg.MinConns,
		MaxConnLifetime: time.Duration(dbCfg.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	app.addCloser(func(context.Context) error {
		pool.Close()
		return nil
	})
	if dbCfg.AutoMigrate {
		if err := postgres.Migrate(pool); err != nil {
			return fmt.Errorf("postgres migrate failed: %w", err)
		}
		app.logger.Info("database schema up to date")
	}
	store, err := postgres.NewSiteStoreWithPool(pool)
	if err != nil {
		return fmt.Errorf("site store init failed: %w", err)
	}
	app.store = store
	app.ready = pool.Ping
	app.logger.Info("postgres site store initialized", zap.Int32("max_conns", pool.Config().MaxConns))
	return nil
}

func setupSnapshots(ctx context.Context, app *App) (crawler.BlobStore, error) {
	snap := app.cfg.Snapshots
	switch snap.Backend {
	case config.SnapshotsGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: snap.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.addCloser(func(context.Context) error { return store.Close() })
		app.logger.Info("using GCS snapshot backend", zap.String("bucket", snap.Bucket))
		return store, nil
	case config.SnapshotsLocal:
		store, err := local.New(local.Config{BaseDir: snap.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot backend", zap.String("path", snap.Dir))
		return store, nil
	case config.SnapshotsMemory:
		app.logger.Info("using in-memory snapshot backend")
		return memory.NewBlobStore(), nil
	default:
		app.logger.Info("page snapshots disabled")
		return nil, nil
	}
}

func setupRenderer(app *App) (crawler.Renderer, error) {
	cfg := app.cfg
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.PageTimeout(),
	})
	if cfg.Renderer.Mode == config.RendererStatic {
		app.logger.Info("using static renderer", zap.String("user_agent", cfg.Crawl.UserAgent))
		return static, nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Renderer.MaxParallel,
		UserAgent:         cfg.Crawl.UserAgent,
		NavigationTimeout: cfg.RootTimeout(),
		ViewportWidth:     cfg.Renderer.ViewportWidth,
		ViewportHeight:    cfg.Renderer.ViewportHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("headless renderer init failed: %w", err)
	}
	app.addCloser(func(context.Context) error {
		headless.Close()
		return nil
	})

	if cfg.Renderer.Mode == config.RendererAuto {
		app.logger.Info("using auto renderer",
			zap.Int("promotion_threshold", cfg.Renderer.PromotionThreshold),
			zap.Int("max_parallel", cfg.Renderer.MaxParallel),
		)
		return auto.New(static, headless, detector.NewHeuristic(cfg.Renderer.PromotionThreshold), app.logger.Named("renderer")), nil
	}
	app.logger.Info("using headless renderer", zap.Int("max_parallel", cfg.Renderer.MaxParallel))
	return headless, nil
}

func setupSummarizer(ctx context.Context, app *App) (crawler.Summarizer, error) {
	sc := app.cfg.Summarizer
	if sc.Provider != config.SummarizerGemini {
		app.logger.Warn("no summarizer configured, summaries fall back to raw content",
			zap.Int("fallback_chars", sc.FallbackChars))
		return summarizer.Noop{}, nil
	}
	gem, err := summarizer.NewGemini(ctx, sc.APIKey, summarizer.Config{
		Model:             sc.Model,
		MaxInputChars:     sc.MaxInputChars,
		RequestsPerSecond: sc.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("summarizer init failed: %w", err)
	}
	app.logger.Info("using gemini summarizer", zap.String("model", sc.Model))
	return gem, nil
}

// Run starts the HTTP server and, when enabled, the poller. It blocks until
// ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if a.cfg.Poller.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.poller.Run(ctx)
		}()
	} else {
		a.logger.Warn("poller disabled, queued crawls will not run in this process")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every dependency opened by Build, newest first.
func (a *App) Close(ctx context.Context) {
	a.closeAll(ctx)
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

func (a *App) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close dependency failed", zap.Error(err))
		}
	}
	a.closers = nil
}
