package configstore

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestEquipmentConfig_AppliesDefaultsForMissingFields(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"equipment_id":"boiler-1","equipment_type":"boiler-comfort","site_id":"site-1"}`))
	})

	cfg, err := c.EquipmentConfig(t.Context(), "site-1", "boiler-1")
	require.NoError(t, err)
	assert.Equal(t, "boiler-1", cfg.EquipmentID)
	assert.Equal(t, 0.0, cfg.Setpoint)
	assert.Nil(t, cfg.Gains)
	assert.Equal(t, "", cfg.GroupID)
}

func TestEquipmentConfig_ParsesFullDocument(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"equipment_id":"boiler-1","equipment_type":"boiler-comfort","site_id":"site-1",
			"setpoint": 150.5, "deadband": 2.5, "group_id": "group-a",
			"gains": {"heating": {"kp": 0.5, "ki": 0.1, "kd": 0.0, "out_min": 0, "out_max": 100}},
			"extra": {"safetyHighLimit": 175.0}
		}`))
	})

	cfg, err := c.EquipmentConfig(t.Context(), "site-1", "boiler-1")
	require.NoError(t, err)
	assert.Equal(t, 150.5, cfg.Setpoint)
	assert.Equal(t, 2.5, cfg.Deadband)
	assert.Equal(t, "group-a", cfg.GroupID)
	require.Contains(t, cfg.Gains, "heating")
	assert.Equal(t, 0.5, cfg.Gains["heating"].Kp)
	assert.Equal(t, 175.0, cfg.Extra["safetyHighLimit"])
}

func TestEquipmentConfig_PermanentStatusNotRetried(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.EquipmentConfig(t.Context(), "site-1", "missing")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a 404 is permanent and must not be retried")
}

func TestEquipmentConfig_TransientStatusRetries(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"equipment_id":"boiler-1","equipment_type":"boiler-comfort","site_id":"site-1"}`))
	})

	cfg, err := c.EquipmentConfig(t.Context(), "site-1", "boiler-1")
	require.NoError(t, err)
	assert.Equal(t, "boiler-1", cfg.EquipmentID)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestListEquipment_ReturnsAllDocuments(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"equipment_id":"boiler-1","equipment_type":"boiler-comfort","site_id":"site-1"},
			{"equipment_id":"boiler-2","equipment_type":"boiler-domestic","site_id":"site-1"}
		]`))
	})

	list, err := c.ListEquipment(t.Context(), "site-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "boiler-1", list[0].EquipmentID)
	assert.Equal(t, "boiler-2", list[1].EquipmentID)
}

func TestListGroups_AppliesRotationDefault(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"group_id":"group-a","site_id":"site-1","members":["boiler-1","boiler-2"]}]`))
	})

	groups, err := c.ListGroups(t.Context(), "site-1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].UseLeadLag)
	assert.True(t, groups[0].AutoFailover)
	assert.Equal(t, time.Duration(DefaultRotationIntervalDays*24*float64(time.Hour)), groups[0].RotationInterval)
	assert.Equal(t, []string{"boiler-1", "boiler-2"}, groups[0].Members)
}
