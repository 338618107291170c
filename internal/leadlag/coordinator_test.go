package leadlag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroup(key GroupKey, members []string, lead string) *Group {
	return &Group{
		Key:              key,
		SiteID:           "site-1",
		GroupID:          "boilers",
		Members:          members,
		CurrentLeadID:    lead,
		UseLeadLag:       true,
		AutoFailover:     true,
		RotationInterval: 7 * 24 * time.Hour,
	}
}

func TestCoordinator_Decide_SingleMemberIsAlwaysLead(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")
	require.NoError(t, storage.Store(ctx, newTestGroup(key, []string{"b1"}, "b1")))

	coord := NewCoordinator(storage, nil, nil)
	decision, err := coord.Decide(ctx, key, "b1", MetricsView{SupplyTempF: 150}, time.Now())

	require.NoError(t, err)
	assert.True(t, decision.IsLead)
	assert.True(t, decision.ShouldRun)
}

func TestCoordinator_Decide_LeadHealthyLagWaits(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")
	require.NoError(t, storage.Store(ctx, newTestGroup(key, []string{"b1", "b2"}, "b1")))

	coord := NewCoordinator(storage, nil, nil)
	decision, err := coord.Decide(ctx, key, "b2", MetricsView{SupplyTempF: 150}, time.Now())

	require.NoError(t, err)
	assert.False(t, decision.IsLead)
	assert.False(t, decision.ShouldRun)
	assert.Empty(t, decision.Events)
}

// TestCoordinator_Decide_Failover mirrors spec scenario S3: lead supply
// temp exceeds the safety threshold, auto-failover promotes the lag.
func TestCoordinator_Decide_Failover(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")
	require.NoError(t, storage.Store(ctx, newTestGroup(key, []string{"b1", "b2"}, "b1")))

	coord := NewCoordinator(storage, nil, nil)
	decision, err := coord.Decide(ctx, key, "b2", MetricsView{SupplyTempF: 175}, time.Now())

	require.NoError(t, err)
	assert.True(t, decision.IsLead)
	assert.True(t, decision.ShouldRun)
	require.Len(t, decision.Events, 1)
	assert.Equal(t, EventFailover, decision.Events[0].Kind)
	assert.Equal(t, "b2", decision.Events[0].EquipmentID)

	group, err := storage.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "b2", group.CurrentLeadID)
	assert.Equal(t, 1, group.FailoverCount)
}

func TestCoordinator_Decide_FailOpenOnMissingTelemetry(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")
	require.NoError(t, storage.Store(ctx, newTestGroup(key, []string{"b1", "b2"}, "b1")))

	coord := NewCoordinator(storage, nil, nil)
	decision, err := coord.Decide(ctx, key, "b2", MetricsView{Missing: true}, time.Now())

	require.NoError(t, err)
	assert.False(t, decision.IsLead)
	assert.Empty(t, decision.Events)
}

// TestCoordinator_Decide_ScheduledRotation mirrors spec scenario S4: a
// rotation-interval elapsed since the last rotation triggers exactly one
// rotation event, and a second tick within the 5 minute check cooldown
// produces no further events.
func TestCoordinator_Decide_ScheduledRotation(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")

	group := newTestGroup(key, []string{"b1", "b2"}, "b1")
	group.RotationInterval = 7 * 24 * time.Hour
	group.LastRotationAt = time.Now().Add(-7*24*time.Hour - 2*time.Hour + 7*time.Minute)
	require.NoError(t, storage.Store(ctx, group))

	coord := NewCoordinator(storage, nil, nil)
	now := time.Now()

	decision, err := coord.Decide(ctx, key, "b1", MetricsView{SupplyTempF: 150}, now)
	require.NoError(t, err)
	require.Len(t, decision.Events, 1)
	assert.Equal(t, EventRotation, decision.Events[0].Kind)
	assert.Equal(t, "b2", decision.Events[0].EquipmentID)

	decision2, err := coord.Decide(ctx, key, "b2", MetricsView{SupplyTempF: 150}, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, decision2.Events)
}

func TestCoordinator_Decide_LeadLagDisabled(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "pumps")

	group := newTestGroup(key, []string{"p1", "p2"}, "p1")
	group.UseLeadLag = false
	require.NoError(t, storage.Store(ctx, group))

	coord := NewCoordinator(storage, nil, nil)
	decision, err := coord.Decide(ctx, key, "p2", MetricsView{}, time.Now())

	require.NoError(t, err)
	assert.True(t, decision.IsLead)
	assert.True(t, decision.ShouldRun)
}

func TestGroup_RemoveMember_PromotesNextOnLeadRemoval(t *testing.T) {
	group := newTestGroup(NewGroupKey("site-1", "boilers"), []string{"b1", "b2", "b3"}, "b1")

	promoted, wasLead := group.RemoveMember("b1")

	assert.True(t, wasLead)
	assert.Equal(t, "b2", promoted)
	assert.Equal(t, "b2", group.CurrentLeadID)
	assert.Equal(t, []string{"b2", "b3"}, group.Members)
}

func TestGroup_AddMember_AppendsOnce(t *testing.T) {
	group := newTestGroup(NewGroupKey("site-1", "boilers"), []string{"b1"}, "b1")

	group.AddMember("b2")
	group.AddMember("b2")

	assert.Equal(t, []string{"b1", "b2"}, group.Members)
}
