package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatacontrols/bms-core/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	policy := resilience.DefaultRetryPolicy()
	policy.MaxRetries = 1
	policy.BaseDelay = time.Millisecond
	policy.ErrorChecker = resilience.NewHTTPErrorChecker()

	c := New(Config{
		BaseURL:         srv.URL,
		Database:        "bms",
		FreshnessWindow: time.Minute,
		SiteQPS:         100,
		RetryPolicy:     policy,
	}, nil)
	return c, srv
}

func TestClient_ReadLatest_FreshSample(t *testing.T) {
	now := time.Now().UTC()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rows := []map[string]any{
			{"time": now.Format(time.RFC3339), "equipment_id": "boiler-1", "supply": 150.2, "unitEnable": true},
		}
		_ = json.NewEncoder(w).Encode(rows)
	})

	sample, err := c.ReadLatest(context.Background(), "site-1", "boiler-1")
	require.NoError(t, err)
	assert.False(t, sample.Stale)
	assert.Equal(t, 150.2, sample.Fields["supply"])
	assert.NotContains(t, sample.Fields, "equipment_id")
}

func TestClient_ReadLatest_StaleSampleSurfacedNotRejected(t *testing.T) {
	old := time.Now().Add(-time.Hour).UTC()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rows := []map[string]any{
			{"time": old.Format(time.RFC3339), "equipment_id": "boiler-1", "supply": 140.0},
		}
		_ = json.NewEncoder(w).Encode(rows)
	})

	sample, err := c.ReadLatest(context.Background(), "site-1", "boiler-1")
	require.NoError(t, err)
	assert.True(t, sample.Stale)
	assert.Greater(t, sample.Age, time.Minute)
}

func TestClient_ReadLatest_NoRowsReturnsNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})

	_, err := c.ReadLatest(context.Background(), "site-1", "boiler-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ReadRange_PermanentOn4xxDoesNotRetry(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad query"}`))
	})

	_, err := c.ReadRange(context.Background(), "site-1", "boiler-1", time.Time{}, time.Time{}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestClient_ReadRange_TransientOn5xxRetries(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"time": time.Now().UTC().Format(time.RFC3339), "equipment_id": "boiler-1", "supply": 150.0},
		})
	})

	samples, err := c.ReadRange(context.Background(), "site-1", "boiler-1", time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 2, attempts)
}
