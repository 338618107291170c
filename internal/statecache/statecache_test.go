package statecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/automatacontrols/bms-core/internal/cache"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	backend, err := cache.NewRedisCache(&cache.CacheConfig{
		Addr:        mr.Addr(),
		PoolSize:    5,
		DialTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return New(backend)
}

func TestCache_SetGetState(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	err := c.SetState(ctx, "boiler-1", map[string]any{"firingRate": 42.0, "unitEnable": true}, "scheduler", "")
	require.NoError(t, err)

	state, err := c.GetState(ctx, "boiler-1")
	require.NoError(t, err)
	require.Equal(t, 42.0, state.Fields["firingRate"])
	require.Equal(t, true, state.Fields["unitEnable"])
	require.Equal(t, "scheduler", state.ModifiedBy)
	require.WithinDuration(t, time.Now(), state.LastModified, 5*time.Second)
}

func TestCache_LastModified_UnsetReturnsZero(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	ts, err := c.LastModified(ctx, "unknown")
	require.NoError(t, err)
	require.True(t, ts.IsZero())
}

func TestCache_OARRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.SetOAR(ctx, "boiler-1", 125.0))
	v, err := c.GetOAR(ctx, "boiler-1")
	require.NoError(t, err)
	require.Equal(t, 125.0, v)
}

func TestCache_LeadLagSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	snapshot := LeadLagSnapshot{
		CurrentLeadID:  "b2",
		LastRotationAt: time.Now().UTC().Truncate(time.Second),
		FailoverCount:  1,
	}
	require.NoError(t, c.SetLeadLagSnapshot(ctx, "boilers", snapshot))

	got, err := c.GetLeadLagSnapshot(ctx, "boilers")
	require.NoError(t, err)
	require.Equal(t, snapshot.CurrentLeadID, got.CurrentLeadID)
	require.Equal(t, snapshot.FailoverCount, got.FailoverCount)
}
