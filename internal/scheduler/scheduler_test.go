package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/automatacontrols/bms-core/internal/cache"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/postgres"
	"github.com/automatacontrols/bms-core/internal/queue"
	"github.com/automatacontrols/bms-core/internal/statecache"
	"github.com/automatacontrols/bms-core/internal/telemetry"
)

// setupTestQueue mirrors internal/queue's own test helper: a disposable
// Postgres container with the queue migrations applied.
func setupTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("bmscore_test"),
		tcpostgres.WithUsername("bmscore"),
		tcpostgres.WithPassword("bmscore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := postgres.DefaultConfig()
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.Database = "bmscore_test"
	cfg.User = "bmscore"
	cfg.Password = "bmscore"

	require.NoError(t, queue.Migrate(cfg, nil))

	pool := postgres.NewPostgresPool(cfg, nil)
	require.NoError(t, pool.Connect(ctx))
	t.Cleanup(func() { _ = pool.Disconnect(ctx) })

	return queue.New(pool)
}

func newTestStateCache(t *testing.T) *statecache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	backend, err := cache.NewRedisCache(&cache.CacheConfig{Addr: mr.Addr(), PoolSize: 5, DialTimeout: time.Second}, nil)
	require.NoError(t, err)
	return statecache.New(backend)
}

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestTelemetry(t *testing.T, rows []map[string]any) *telemetry.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rows)
	}))
	t.Cleanup(srv.Close)
	return telemetry.New(telemetry.Config{BaseURL: srv.URL, Database: "bms", FreshnessWindow: time.Minute, SiteQPS: 100}, nil)
}

// stubConfigs is a fixed-response ConfigProvider for tests.
type stubConfigs struct {
	list []equipment.Config
	err  error
}

func (s stubConfigs) ListEquipment(ctx context.Context, siteID string) ([]equipment.Config, error) {
	return s.list, s.err
}

func newTestScheduler(t *testing.T, q *queue.Queue, configs ConfigProvider, samples []map[string]any) *Scheduler {
	t.Helper()
	return New(Config{SiteID: "site-1", TickInterval: MinTickInterval}, Dependencies{
		Queue:       q,
		Telemetry:   newTestTelemetry(t, samples),
		Cache:       newTestStateCache(t),
		Configs:     configs,
		RedisClient: newTestRedisClient(t),
	})
}

func TestRunTick_StaleEquipmentAlwaysEnqueued(t *testing.T) {
	q := setupTestQueue(t)
	cfg := equipment.Config{EquipmentID: "boiler-1", EquipmentType: "boiler-comfort", SiteID: "site-1", Setpoint: 150}
	s := newTestScheduler(t, q, stubConfigs{list: []equipment.Config{cfg}}, nil)

	require.NoError(t, s.runTick(context.Background()))

	job, err := q.Reserve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "boiler-1", job.EquipmentID)
	assert.Equal(t, queue.PriorityNormal, job.Priority)
}

func TestRunTick_RecentlyProcessedAndInBandSkipsEnqueue(t *testing.T) {
	q := setupTestQueue(t)
	cfg := equipment.Config{EquipmentID: "boiler-2", EquipmentType: "boiler-comfort", SiteID: "site-1", Setpoint: 150, Deadband: 5}
	s := newTestScheduler(t, q, stubConfigs{list: []equipment.Config{cfg}},
		[]map[string]any{{"time": time.Now().UTC().Format(time.RFC3339), "equipment_id": "boiler-2", "supply": 150.0}})

	require.NoError(t, s.cache.SetState(context.Background(), "boiler-2", map[string]any{"firingRate": 40.0}, "control-engine", ""))

	require.NoError(t, s.runTick(context.Background()))

	job, err := q.Reserve(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job, "an in-band, recently-processed equipment should not be re-enqueued")
}

func TestRunTick_SafetyOutOfBoundsEnqueuesHighPriority(t *testing.T) {
	q := setupTestQueue(t)
	cfg := equipment.Config{EquipmentID: "boiler-3", EquipmentType: "boiler-comfort", SiteID: "site-1", Setpoint: 150, Deadband: 5}
	s := newTestScheduler(t, q, stubConfigs{list: []equipment.Config{cfg}},
		[]map[string]any{{"time": time.Now().UTC().Format(time.RFC3339), "equipment_id": "boiler-3", "supply": 180.0}})

	require.NoError(t, s.cache.SetState(context.Background(), "boiler-3", map[string]any{"firingRate": 40.0}, "control-engine", ""))

	require.NoError(t, s.runTick(context.Background()))

	job, err := q.Reserve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, safetyPriority, job.Priority)
}

func TestRunTick_DeviationExceedsBandEnqueuesNormalPriority(t *testing.T) {
	q := setupTestQueue(t)
	cfg := equipment.Config{EquipmentID: "boiler-4", EquipmentType: "boiler-comfort", SiteID: "site-1", Setpoint: 150, Deadband: 2}
	s := newTestScheduler(t, q, stubConfigs{list: []equipment.Config{cfg}},
		[]map[string]any{{"time": time.Now().UTC().Format(time.RFC3339), "equipment_id": "boiler-4", "supply": 130.0}})

	require.NoError(t, s.cache.SetState(context.Background(), "boiler-4", map[string]any{"firingRate": 40.0}, "control-engine", ""))

	require.NoError(t, s.runTick(context.Background()))

	job, err := q.Reserve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.PriorityNormal, job.Priority)
}

func TestRunTick_RepeatedFailuresMarkDegraded(t *testing.T) {
	q := setupTestQueue(t)
	s := newTestScheduler(t, q, stubConfigs{err: errConfigStoreUnavailable}, nil)

	for i := 0; i < maxConsecutiveTickFailures; i++ {
		s.tick(context.Background())
	}

	stats := s.Stats()
	assert.True(t, stats.Degraded)
	assert.Equal(t, int32(maxConsecutiveTickFailures), stats.ConsecutiveFailures)
}

func TestScheduler_TickOverlapGuardSkipsConcurrentTick(t *testing.T) {
	q := setupTestQueue(t)
	s := newTestScheduler(t, q, stubConfigs{list: nil}, nil)

	lockKey := "scheduler:tick:site-1"
	lk, err := s.lockMgr.AcquireLock(context.Background(), lockKey)
	require.NoError(t, err)
	defer func() { _ = lk.Release(context.Background()) }()

	s.tick(context.Background())

	assert.True(t, s.Stats().LastTickAt.IsZero(), "a tick that lost the overlap guard should not record a run")
}

func TestDecideEnqueue_NoSetpointNeverDeviates(t *testing.T) {
	cfg := equipment.Config{EquipmentID: "generic-1"}
	should, _, _ := decideEnqueue(cfg, map[string]any{"supply": 100.0}, true, time.Now(), time.Now(), time.Hour)
	assert.False(t, should)
}

var errConfigStoreUnavailable = configStoreError("config store unavailable")

type configStoreError string

func (e configStoreError) Error() string { return string(e) }
