package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/automatacontrols/bms-core/internal/postgres"
)

// setupTestQueue starts a disposable Postgres container, applies the queue
// migrations against it, and returns a ready Queue.
func setupTestQueue(t *testing.T) *Queue {
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

	require.NoError(t, Migrate(cfg, nil))

	pool := postgres.NewPostgresPool(cfg, nil)
	require.NoError(t, pool.Connect(ctx))
	t.Cleanup(func() { _ = pool.Disconnect(ctx) })

	return New(pool)
}

// TestEnqueue_DuplicateWithinActiveWindowIsNoOp mirrors spec scenario S5.
func TestEnqueue_DuplicateWithinActiveWindowIsNoOp(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, EnqueueRequest{
		Kind: KindProcessEquipment, SiteID: "site-1", EquipmentID: "eq-1",
		Payload: map[string]any{"tick": 0}, Priority: PriorityNormal,
	})
	require.NoError(t, err)

	id2, err := q.Enqueue(ctx, EnqueueRequest{
		Kind: KindProcessEquipment, SiteID: "site-1", EquipmentID: "eq-1",
		Payload: map[string]any{"tick": 1}, Priority: PriorityNormal,
	})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

// TestEnqueue_HigherPriorityRaisesExisting checks that a strictly
// higher-priority enqueue with the same dedup key (equipment, kind) raises
// the waiting job's priority instead of adding a second job.
func TestEnqueue_HigherPriorityRaisesExisting(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, EnqueueRequest{
		Kind: KindProcessEquipment, SiteID: "site-1", EquipmentID: "eq-2",
		Priority: PriorityNormal,
	})
	require.NoError(t, err)

	id2, err := q.Enqueue(ctx, EnqueueRequest{
		Kind: KindProcessEquipment, SiteID: "site-1", EquipmentID: "eq-2",
		Priority: PriorityEmergency,
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	job, err := q.Inspect(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, PriorityEmergency, job.Priority)
}

func TestReserve_PicksHighestPriorityFirst(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, EnqueueRequest{Kind: KindProcessEquipment, SiteID: "s", EquipmentID: "low", Priority: PriorityNormal})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, EnqueueRequest{Kind: KindEmergencyShutdown, SiteID: "s", EquipmentID: "high", Priority: PriorityEmergency})
	require.NoError(t, err)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "high", job.EquipmentID)
	assert.Equal(t, StatusActive, job.Status)
	assert.Equal(t, 1, job.AttemptsMade)
}

func TestReserve_EmptyQueueReturnsNil(t *testing.T) {
	q := setupTestQueue(t)
	job, err := q.Reserve(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFail_ReschedulesWithBackoffWhileAttemptsRemain(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, EnqueueRequest{
		Kind: KindProcessEquipment, SiteID: "s", EquipmentID: "flaky", AttemptsMax: 2,
	})
	require.NoError(t, err)

	reserved, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.Equal(t, id, reserved.ID)

	before := time.Now()
	require.NoError(t, q.Fail(ctx, id, "transient error"))
	job, err := q.Inspect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDelayed, job.Status)
	assert.True(t, job.ScheduledAt.After(before.Add(3*time.Second)), "backoff(1) = 4s")

	reserved2, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.Nil(t, reserved2, "job is delayed into the future, not yet ready")
}

func TestFail_TerminalWhenAttemptsExhausted(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, EnqueueRequest{
		Kind: KindProcessEquipment, SiteID: "s", EquipmentID: "doomed", AttemptsMax: 1,
	})
	require.NoError(t, err)

	_, err = q.Reserve(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, id, "permanent error"))
	job, err := q.Inspect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "permanent error", job.LastError)
}

func TestStallDetect_RequeuesStalledActiveJob(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, EnqueueRequest{Kind: KindProcessEquipment, SiteID: "s", EquipmentID: "stuck"})
	require.NoError(t, err)
	_, err = q.Reserve(ctx)
	require.NoError(t, err)

	count, err := q.StallDetect(ctx, 0*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	job, err := q.Inspect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDelayed, job.Status)
	assert.Equal(t, "stalled", job.LastError)
}

func TestBackoff_DoublesPerAttempt(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(0))
	assert.Equal(t, 4*time.Second, backoff(1))
	assert.Equal(t, 8*time.Second, backoff(2))
}

func TestDedupKey_CombinesEquipmentAndKind(t *testing.T) {
	a := dedupKey("eq-1", KindProcessEquipment)
	b := dedupKey("eq-1", KindApplyUserCommand)
	assert.NotEqual(t, a, b)
}
