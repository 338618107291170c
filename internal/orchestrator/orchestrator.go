// Package orchestrator wires together the job queue, the worker pool, one
// scheduler per configured site, and the lead-lag coordinator into a single
// running process, and exposes the control-plane HTTP surface
// (healthz/readyz/metrics/status) over them. It owns every backend
// connection and is the one place in the module that constructs the real
// collaborators the other packages only describe as interfaces. Its
// lifecycle (construct backends, start workers and schedulers, stop on
// signal with a drain deadline) follows the teacher's cmd/server: a flat
// main-style setup function plus a goroutine-per-listener shutdown path,
// moved here so it is testable without a real process boundary.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/automatacontrols/bms-core/internal/cache"
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/config"
	"github.com/automatacontrols/bms-core/internal/configstore"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/leadlag"
	"github.com/automatacontrols/bms-core/internal/postgres"
	"github.com/automatacontrols/bms-core/internal/queue"
	"github.com/automatacontrols/bms-core/internal/scheduler"
	"github.com/automatacontrols/bms-core/internal/statecache"
	"github.com/automatacontrols/bms-core/internal/telemetry"
	"github.com/automatacontrols/bms-core/internal/worker"
	"github.com/automatacontrols/bms-core/pkg/metrics"
)

// defaultStallSweepInterval is how often Orchestrator sweeps the queue for
// stalled active jobs (spec.md §5's 60s stall-detection window).
const defaultStallSweepInterval = 30 * time.Second

// Orchestrator owns one Scheduler per configured site and one shared
// worker.Pool, plus every backend connection they're built from.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger

	pgPool    *postgres.PostgresPool
	redisCore *redis.Client // backs leadlag + lock; the state cache uses its own pool via cache.RedisCache

	queue          *queue.Queue
	stateCache     *statecache.Cache
	telemetryClt   *telemetry.Client
	commands       *commandwriter.Client
	configs        *configstore.Client
	equipmentCfg   *scheduler.CachedConfigProvider
	registry       *equipment.Registry
	leadlagStorage leadlag.Storage
	leadlagCoord   *leadlag.Coordinator
	metrics        *metrics.MetricsRegistry

	pool       *worker.Pool
	siteOrder  []string
	schedulers map[string]*scheduler.Scheduler

	httpServer *http.Server

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New wires every backend connection and in-process collaborator from cfg,
// but does not start anything — call Start for that.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pgCfg, err := postgres.ParseURL(cfg.Queue.URL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse queue url: %w", err)
	}
	pgCfg.MaxConns = int32(cfg.Queue.MaxConnections)
	pgCfg.MinConns = int32(cfg.Queue.MinConnections)
	if cfg.Queue.MaxConnLifetime > 0 {
		pgCfg.MaxConnLifetime = cfg.Queue.MaxConnLifetime
	}
	if cfg.Queue.MaxConnIdleTime > 0 {
		pgCfg.MaxConnIdleTime = cfg.Queue.MaxConnIdleTime
	}
	if cfg.Queue.ConnectTimeout > 0 {
		pgCfg.ConnectTimeout = cfg.Queue.ConnectTimeout
	}
	if err := pgCfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: queue config: %w", err)
	}

	if err := queue.Migrate(pgCfg, logger); err != nil {
		logger.Warn("queue migrations failed, continuing with existing schema", "error", err)
	}

	pgPool := postgres.NewPostgresPool(pgCfg, logger)
	if err := pgPool.Connect(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: connect queue database: %w", err)
	}
	jobQueue := queue.New(pgPool)

	redisCache, err := cache.NewRedisCacheFromURL(cfg.Cache.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connect state cache: %w", err)
	}
	stateCache := statecache.New(redisCache)

	redisOpts, err := redis.ParseURL(cfg.Cache.URL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse state cache url: %w", err)
	}
	redisCore := redis.NewClient(redisOpts)

	metricsRegistry := metrics.NewMetricsRegistry(cfg.App.Name)

	telemetryClt := telemetry.New(telemetry.Config{
		BaseURL:         cfg.Telemetry.URL,
		ReadTimeout:     cfg.Telemetry.Timeout,
		FreshnessWindow: cfg.Telemetry.FreshnessWindow,
		SiteQPS:         cfg.Telemetry.RateLimitPerSec,
	}, metricsRegistry.Infra().Telemetry)

	commands := commandwriter.New(commandwriter.Config{
		SinkURLs:    cfg.Command.SinkURLs,
		Database:    cfg.App.Name,
		SinkTimeout: cfg.Command.Timeout,
	}, stateCache, metricsRegistry.Business())

	configsClient := configstore.New(configstore.Config{
		BaseURL: cfg.ConfigStore.URL,
		Timeout: cfg.ConfigStore.Timeout,
	})
	equipmentCfg, err := scheduler.NewCachedConfigProvider(configsClient, cfg.Scheduler.EquipmentLRUMax, cfg.Scheduler.EquipmentTTL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build config cache: %w", err)
	}

	registry := buildRegistry()

	var leadlagStorage leadlag.Storage
	redisStorage, err := leadlag.NewRedisStorage(ctx, redisCore, logger)
	if err != nil {
		logger.Warn("lead-lag redis storage unavailable, falling back to in-memory storage", "error", err)
		leadlagStorage = leadlag.NewMemoryStorage(logger)
	} else {
		leadlagStorage = redisStorage
	}
	leadlagCoord := leadlag.NewCoordinator(leadlagStorage, redisCore, logger)

	pool := worker.New(worker.Config{
		Workers:     cfg.Worker.Count,
		QueueSize:   cfg.Worker.QueueSize,
		JobTimeout:  cfg.Worker.JobTimeout,
		StopTimeout: cfg.Worker.DrainTimeout,
		Logger:      logger,
	}, worker.Dependencies{
		Queue:     jobQueue,
		Registry:  registry,
		Telemetry: telemetryClt,
		Commands:  commands,
		Cache:     stateCache,
		LeadLag:   leadlagCoord,
		Configs:   configsClient,
		Metrics:   metricsRegistry.Business(),
	})

	o := &Orchestrator{
		cfg:            cfg,
		logger:         logger,
		pgPool:         pgPool,
		redisCore:      redisCore,
		queue:          jobQueue,
		stateCache:     stateCache,
		telemetryClt:   telemetryClt,
		commands:       commands,
		configs:        configsClient,
		equipmentCfg:   equipmentCfg,
		registry:       registry,
		leadlagStorage: leadlagStorage,
		leadlagCoord:   leadlagCoord,
		metrics:        metricsRegistry,
		pool:           pool,
		siteOrder:      append([]string(nil), cfg.App.Sites...),
		schedulers:     make(map[string]*scheduler.Scheduler, len(cfg.App.Sites)),
		stopChan:       make(chan struct{}),
	}

	for _, siteID := range o.siteOrder {
		o.schedulers[siteID] = scheduler.New(scheduler.Config{
			SiteID:       siteID,
			TickInterval: cfg.Scheduler.TickInterval,
			Logger:       logger.With("site_id", siteID),
		}, scheduler.Dependencies{
			Queue:       jobQueue,
			Telemetry:   telemetryClt,
			Cache:       stateCache,
			Configs:     equipmentCfg,
			RedisClient: redisCore,
			Metrics:     metricsRegistry.Business(),
		})
	}

	if err := o.seedGroups(ctx); err != nil {
		logger.Warn("lead-lag group seeding failed, continuing with existing persisted state", "error", err)
	}

	o.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: o.mux(),
	}

	return o, nil
}

// seedGroups stores each configured site's groups into lead-lag storage if
// they aren't already persisted there, so a fresh deployment has working
// lead/lag state from its first tick without requiring an operator to seed
// it by hand. Existing persisted state (current lead, rotation history,
// failover count) is never overwritten — configstore only supplies the
// group's static membership and policy on first sight.
func (o *Orchestrator) seedGroups(ctx context.Context) error {
	for _, siteID := range o.siteOrder {
		groups, err := o.configs.ListGroups(ctx, siteID)
		if err != nil {
			return fmt.Errorf("list groups for site %s: %w", siteID, err)
		}
		for _, g := range groups {
			key := leadlag.NewGroupKey(g.SiteID, g.GroupID)
			if _, err := o.leadlagStorage.Load(ctx, key); err == nil {
				continue
			}
			lead := ""
			if len(g.Members) > 0 {
				lead = g.Members[0]
			}
			seeded := &leadlag.Group{
				Key:              key,
				SiteID:           g.SiteID,
				GroupID:          g.GroupID,
				Members:          g.Members,
				CurrentLeadID:    lead,
				UseLeadLag:       g.UseLeadLag,
				AutoFailover:     g.AutoFailover,
				RotationInterval: g.RotationInterval,
			}
			if err := o.leadlagStorage.Store(ctx, seeded); err != nil {
				o.logger.Warn("failed to seed lead-lag group", "site_id", g.SiteID, "group_id", g.GroupID, "error", err)
			}
		}
	}
	return nil
}

// Start launches the worker pool, every site's scheduler, the stall-sweep
// loop, and the control-plane HTTP server. It returns once the HTTP server
// is listening; ListenAndServe failures after that surface through the
// logger rather than this call, matching the teacher's detached-listener
// shutdown pattern.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.pool.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start worker pool: %w", err)
	}
	for _, siteID := range o.siteOrder {
		o.schedulers[siteID].Start(ctx)
	}

	o.wg.Add(1)
	go o.stallSweepLoop(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.logger.Error("control-plane http server failed", "error", err)
		}
	}()

	return nil
}

// stallSweepLoop periodically requeues-as-failed any job stuck reserved
// past the queue's stall timeout (spec.md §5).
func (o *Orchestrator) stallSweepLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(defaultStallSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopChan:
			return
		case <-ticker.C:
			n, err := o.queue.StallDetect(ctx, o.cfg.Queue.StallTimeout)
			if err != nil {
				o.logger.Warn("stall sweep failed", "error", err)
				continue
			}
			if n > 0 {
				o.logger.Warn("stall sweep failed jobs", "count", n)
			}
		}
	}
}

// Stop stops every scheduler's tick loop, drains the worker pool up to its
// configured stop timeout, shuts down the HTTP server, and closes every
// backend connection. Order matters: no new jobs may be enqueued once
// schedulers stop, so draining the pool afterward is bounded.
func (o *Orchestrator) Stop(ctx context.Context) error {
	close(o.stopChan)

	for _, siteID := range o.siteOrder {
		o.schedulers[siteID].Stop()
	}

	if err := o.pool.Stop(); err != nil {
		o.logger.Warn("worker pool stop returned error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := o.httpServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("control-plane http server shutdown returned error", "error", err)
	}

	o.wg.Wait()

	if err := o.pgPool.Disconnect(ctx); err != nil {
		o.logger.Warn("queue database disconnect returned error", "error", err)
	}
	if err := o.redisCore.Close(); err != nil {
		o.logger.Warn("lead-lag redis client close returned error", "error", err)
	}

	return nil
}

// Addr returns the control-plane HTTP server's configured address.
func (o *Orchestrator) Addr() string {
	return o.httpServer.Addr
}
