// Package app builds the collector's dependency graph from configuration and
// runs it until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/adapter"
	"github.com/JakeFAU/board-collector/internal/adapter/listpage"
	"github.com/JakeFAU/board-collector/internal/api"
	"github.com/JakeFAU/board-collector/internal/clock/system"
	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/config"
	"github.com/JakeFAU/board-collector/internal/dispatcher"
	"github.com/JakeFAU/board-collector/internal/fetcher"
	collyfetcher "github.com/JakeFAU/board-collector/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/board-collector/internal/fetcher/headless"
	"github.com/JakeFAU/board-collector/internal/id/uuid"
	memoryindex "github.com/JakeFAU/board-collector/internal/index/memory"
	redisindex "github.com/JakeFAU/board-collector/internal/index/redis"
	"github.com/JakeFAU/board-collector/internal/lock"
	"github.com/JakeFAU/board-collector/internal/metrics"
	"github.com/JakeFAU/board-collector/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/board-collector/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/board-collector/internal/queue/memory"
	"github.com/JakeFAU/board-collector/internal/scheduler"
	gcsstorage "github.com/JakeFAU/board-collector/internal/storage/gcs"
	localstorage "github.com/JakeFAU/board-collector/internal/storage/local"
	memoryStorage "github.com/JakeFAU/board-collector/internal/storage/memory"
	pgstore "github.com/JakeFAU/board-collector/internal/storage/postgres"
	"github.com/JakeFAU/board-collector/internal/worker"
)

const (
	shutdownTimeout = 15 * time.Second
	runHistoryLimit = 100
)

// Option adjusts Build.
type Option func(*App)

// WithPublisher replaces the configured item.created publisher.
func WithPublisher(p collector.Publisher, topic string) Option {
	return func(a *App) {
		a.publisher = p
		a.topic = topic
	}
}

// WithClock replaces the wall clock.
func WithClock(c collector.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  collector.Clock
	ids    collector.IDGenerator

	pool            *pgxpool.Pool
	redis           *goredis.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	gcsClient       *storage.Client
	headless        *headlessfetcher.Fetcher

	primary   collector.PrimaryStore
	index     collector.IndexStore
	runs      collector.RunRecorder
	locks     collector.LockRegistry
	publisher collector.Publisher
	topic     string
	archive   collector.BlobStore
	checks    map[string]api.Check

	adapters   *adapter.Registry
	queue      *queueMemory.Queue
	scheduler  *scheduler.Scheduler
	runners    map[string]collector.Runner
	dispatch   *dispatcher.Dispatcher
	reconciler *collector.Reconciler
	apiServer  *api.Server
}

// Build creates the application's dependencies. Anything opened before a
// failure is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
		checks: map[string]api.Check{},
	}
	a.topic = cfg.PubSub.TopicName
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.closeInfrastructure()
		}
	}()

	a.logger.Info("building application dependencies")
	steps := []func(context.Context) error{
		a.setupPrimary,
		a.setupRedis,
		a.setupIndex,
		a.setupLocks,
		a.setupPublisher,
		a.setupArchive,
		a.setupAdapters,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.setupPipeline(); err != nil {
		return nil, err
	}

	var apiKey string
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	a.apiServer = api.NewServer(a.scheduler, a.runs, api.Options{APIKey: apiKey, Checks: a.checks}, logger)
	return a, nil
}

func (a *App) setupPrimary(ctx context.Context) error {
	db := a.cfg.Database
	if db.DSN == "" {
		a.logger.Warn("no database.dsn configured, using in-memory primary store")
		a.primary = memoryStorage.NewPostStore()
		a.runs = memoryStorage.NewRunStore(runHistoryLimit)
		return nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("primary store init failed: %w", err)
	}
	a.pool = pool
	a.checks["postgres"] = pool.Ping

	posts, err := pgstore.NewPostStore(pool, db.Table)
	if err != nil {
		return fmt.Errorf("post store init failed: %w", err)
	}
	runs, err := pgstore.NewRunStore(pool, db.RunsTable)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	if db.Migrate {
		if err := posts.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate posts: %w", err)
		}
		if err := runs.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate runs: %w", err)
		}
	}
	a.primary, a.runs = posts, runs
	a.logger.Info("postgres primary store initialized",
		zap.String("table", db.Table),
		zap.String("runs_table", db.RunsTable),
	)
	return nil
}

func (a *App) setupRedis(ctx context.Context) error {
	if a.cfg.Index.Backend != config.BackendRedis && a.cfg.Lock.Backend != config.BackendRedis {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.redis = client
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	a.checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	a.logger.Info("redis connected", zap.String("addr", a.cfg.Redis.Addr))
	return nil
}

func (a *App) setupIndex(context.Context) error {
	if a.cfg.Index.Backend != config.BackendRedis {
		a.logger.Info("using in-memory search index")
		a.index = memoryindex.New()
		return nil
	}
	idx, err := redisindex.New(a.redis, a.cfg.Index.KeyPrefix)
	if err != nil {
		return fmt.Errorf("redis index init failed: %w", err)
	}
	a.index = idx
	a.logger.Info("using redis search index", zap.String("prefix", a.cfg.Index.KeyPrefix))
	return nil
}

func (a *App) setupLocks(context.Context) error {
	if a.cfg.Lock.Backend != config.BackendRedis {
		a.locks = lock.NewMemoryRegistry()
		return nil
	}
	reg, err := lock.NewRedisRegistry(a.redis, a.cfg.Lock.KeyPrefix, a.cfg.Lock.TTL, a.ids)
	if err != nil {
		return fmt.Errorf("redis lock init failed: %w", err)
	}
	a.locks = reg
	a.logger.Info("using redis source locks", zap.Duration("ttl", a.cfg.Lock.TTL))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.publisher != nil {
		return nil
	}
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, item.created events disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = gcppublisher.New(client.Publisher(a.cfg.PubSub.TopicName))
	a.publisher = a.pubsubPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.archive = store
		a.logger.Info("archiving list pages to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
	case config.BackendMemory:
		a.archive = memoryStorage.NewBlobStore()
		a.logger.Warn("archiving list pages in memory; pages are lost on exit")
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = store
		a.logger.Info("archiving list pages locally", zap.String("path", a.cfg.Archive.Local.BaseDir))
	default:
		a.logger.Debug("list page archive disabled")
	}
	return nil
}

func (a *App) setupAdapters(context.Context) error {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   time.Duration(a.cfg.HTTP.TimeoutSeconds) * time.Second,
	})
	var rendered fetcher.Fetcher = headlessfetcher.NewNoop()
	if a.cfg.Headless.Enabled {
		h, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = h
		rendered = h
		a.logger.Info("headless fetcher enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}
	hosts := ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.HostRPS, Burst: a.cfg.HTTP.HostBurst})

	a.adapters = adapter.NewRegistry()
	for name, def := range a.cfg.Adapters {
		f := fetcher.Fetcher(static)
		if def.Render {
			f = rendered
		}
		lp, err := listpage.New(name, def, listpage.Deps{
			Fetcher:       f,
			Clock:         a.clock,
			Hosts:         hosts,
			Archive:       a.archive,
			ArchivePrefix: a.cfg.Archive.Prefix,
			Logger:        a.logger.Named("adapter"),
		})
		if err != nil {
			return fmt.Errorf("adapter %s: %w", name, err)
		}
		if err := a.adapters.Register(name, lp); err != nil {
			return fmt.Errorf("register adapter: %w", err)
		}
	}
	a.logger.Info("adapters registered", zap.Strings("names", a.adapters.Names()))
	return nil
}

func (a *App) setupPipeline() error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	a.queue = queueMemory.NewQueue(a.cfg.Scheduler.QueueDepth)
	a.scheduler = scheduler.New(a.queue, a.clock, loc, a.logger)
	bindings := a.scheduler.Register(a.cfg.ScheduledSources(), a.adapters)

	deps := collector.JobDeps{
		Locks:     a.locks,
		Resolver:  collector.NewResolver(a.primary, a.clock),
		Merger:    collector.NewMerger(a.primary),
		Writer:    collector.NewWriter(a.primary, a.index, a.cfg.BatchSize, a.logger.Named("writer")),
		Runs:      a.runs,
		Publisher: a.publisher,
		Topic:     a.topic,
		Clock:     a.clock,
		IDs:       a.ids,
		Logger:    a.logger,
	}
	a.runners = make(map[string]collector.Runner, len(bindings))
	for _, b := range bindings {
		a.runners[b.Source.Name] = collector.NewJob(b.Source.Name, b.Source.Policy, b.Adapter, deps)
	}
	a.dispatch = dispatcher.NewPool(
		a.queue,
		a.runners,
		a.cfg.Scheduler.Workers,
		worker.Config{RunTimeout: a.cfg.Scheduler.RunTimeout},
		a.logger,
	)
	if a.cfg.Reconcile.Enabled {
		a.reconciler = collector.NewReconciler(a.primary, a.index, a.cfg.Reconcile.PageSize, a.logger.Named("reconcile"))
	}
	a.logger.Info("pipeline ready",
		zap.Int("sources", len(a.runners)),
		zap.Int("workers", a.dispatch.Size()),
		zap.Int("queue_depth", a.cfg.Scheduler.QueueDepth),
	)
	return nil
}

// Handler exposes the ops HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Reconcile brings the index level with the primary store. Failures are
// logged and never stop startup.
func (a *App) Reconcile(ctx context.Context) {
	if a.reconciler == nil {
		return
	}
	res, err := a.reconciler.Reconcile(ctx)
	if err != nil {
		a.logger.Error("startup reconciliation failed", zap.Error(err))
		return
	}
	a.logger.Info("startup reconciliation finished",
		zap.Int64("primary_count", res.PrimaryCount),
		zap.Int64("index_count", res.IndexCount),
		zap.Int("indexed", res.Indexed),
		zap.Bool("skipped", res.Skipped),
	)
}

// RunOnce runs a single source in the foreground, bypassing the queue. The
// run is bounded by scheduler.run_timeout like a queued run.
func (a *App) RunOnce(ctx context.Context, source string) (collector.RunRecord, error) {
	runner, ok := a.runners[source]
	if !ok {
		return collector.RunRecord{}, fmt.Errorf("source %q: %w", source, scheduler.ErrUnknownSource)
	}
	a.Reconcile(ctx)
	if a.cfg.Scheduler.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Scheduler.RunTimeout)
		defer cancel()
	}
	run, err := runner.Run(ctx)
	if err != nil {
		return run, fmt.Errorf("run %s: %w", source, err)
	}
	return run, nil
}

// Run reconciles, starts the workers, cron scheduler and HTTP server, and
// blocks until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Reconcile(ctx)

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()
	a.scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop timed out", zap.Error(err))
	}
	a.queue.Close()

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline")
	}

	a.Close()
	return nil
}

// Close releases every client Build opened.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
