package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

type countingConfigs struct {
	calls int
	list  []equipment.Config
}

func (c *countingConfigs) ListEquipment(ctx context.Context, siteID string) ([]equipment.Config, error) {
	c.calls++
	return c.list, nil
}

func TestCachedConfigProvider_RefetchesOnlyAfterTTL(t *testing.T) {
	inner := &countingConfigs{list: []equipment.Config{{EquipmentID: "eq-1"}}}
	cached, err := NewCachedConfigProvider(inner, 0, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = cached.ListEquipment(context.Background(), "site-1")
	require.NoError(t, err)
	_, err = cached.ListEquipment(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second call within the TTL should hit the cache")

	time.Sleep(60 * time.Millisecond)
	_, err = cached.ListEquipment(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "a call past the TTL should refetch")
}

func TestCachedConfigProvider_InvalidateForcesRefetch(t *testing.T) {
	inner := &countingConfigs{list: []equipment.Config{{EquipmentID: "eq-1"}}}
	cached, err := NewCachedConfigProvider(inner, 0, time.Hour)
	require.NoError(t, err)

	_, err = cached.ListEquipment(context.Background(), "site-1")
	require.NoError(t, err)
	cached.Invalidate("site-1")
	_, err = cached.ListEquipment(context.Background(), "site-1")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedConfigProvider_PerSiteIsolation(t *testing.T) {
	inner := &countingConfigs{list: []equipment.Config{{EquipmentID: "eq-1"}}}
	cached, err := NewCachedConfigProvider(inner, 0, time.Hour)
	require.NoError(t, err)

	_, err = cached.ListEquipment(context.Background(), "site-1")
	require.NoError(t, err)
	_, err = cached.ListEquipment(context.Background(), "site-2")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}
