package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/automatacontrols/bms-core/internal/config"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// metricsNamespaceFor derives a Prometheus-safe, test-unique namespace from
// the test name so each Orchestrator built in this file's process registers
// its promauto metrics under a distinct namespace — otherwise the second
// New call in the same test binary would panic on duplicate registration
// against the default registerer.
func metricsNamespaceFor(t *testing.T) string {
	return "bmscore_test_" + nonAlnum.ReplaceAllString(t.Name(), "_")
}

// setupTestConfig assembles a full config.Config pointed at disposable
// backends: a real Postgres container for the queue, miniredis for the
// state cache and lead-lag storage, and httptest servers standing in for
// the telemetry store, command sinks, and config store document service.
func setupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
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
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	mr := miniredis.RunT(t)

	telemetrySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	t.Cleanup(telemetrySrv.Close)

	commandSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(commandSrv.Close)

	configStoreSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(configStoreSrv.Close)

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	cfg.Queue.URL = "postgres://bmscore:bmscore@" + pgHost + ":" + pgPort.Port() + "/bmscore_test?sslmode=disable"
	cfg.Queue.MaxConnections = 5
	cfg.Queue.MinConnections = 1
	cfg.Queue.StallTimeout = 60 * time.Second

	cfg.Cache.URL = "redis://" + mr.Addr() + "/0"

	cfg.Telemetry.URL = telemetrySrv.URL
	cfg.Telemetry.Timeout = 5 * time.Second
	cfg.Telemetry.FreshnessWindow = time.Minute
	cfg.Telemetry.RateLimitPerSec = 100

	cfg.Command.SinkURLs = []string{commandSrv.URL}
	cfg.Command.Timeout = 5 * time.Second

	cfg.ConfigStore.URL = configStoreSrv.URL
	cfg.ConfigStore.Timeout = 5 * time.Second

	cfg.Worker.Count = 2
	cfg.Worker.QueueSize = 16
	cfg.Worker.JobTimeout = 5 * time.Second
	cfg.Worker.DrainTimeout = 2 * time.Second

	cfg.Scheduler.TickInterval = 5 * time.Second
	cfg.Scheduler.EquipmentTTL = time.Minute
	cfg.Scheduler.EquipmentLRUMax = 64

	cfg.App.Name = metricsNamespaceFor(t)
	cfg.App.Sites = []string{"site-1", "site-2"}

	return cfg
}

func TestNew_WiresBackendsAndSchedulersPerSite(t *testing.T) {
	cfg := setupTestConfig(t)
	o, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Len(t, o.schedulers, 2)
	assert.Contains(t, o.schedulers, "site-1")
	assert.Contains(t, o.schedulers, "site-2")
}

func TestStartStop_HealthzOKAfterStart(t *testing.T) {
	cfg := setupTestConfig(t)
	cfg.Scheduler.TickInterval = 5 * time.Second // below MinTickInterval would clamp; keep explicit
	o, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, o.Start(context.Background()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	o.mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, o.Stop(context.Background()))
}

func TestStatus_ReturnsOneEntryPerSite(t *testing.T) {
	cfg := setupTestConfig(t)
	o, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	status, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, status.Sites, 2)
}

func TestHandleStatus_ServesJSON(t *testing.T) {
	cfg := setupTestConfig(t)
	o, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	o.mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload OperationalSurface
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Sites, 2)
}

func TestHandleMetrics_ServesPrometheusText(t *testing.T) {
	cfg := setupTestConfig(t)
	o, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	o.mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
