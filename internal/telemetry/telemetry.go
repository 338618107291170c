// Package telemetry reads equipment metric samples from the SQL-over-HTTP
// time-series store. Reads are best-effort latest: read-your-writes is not
// required, and a sample outside the freshness window is still returned,
// marked stale, so callers (the scheduler, the lead-lag coordinator) can
// decide what to do with old data rather than treating it as missing.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/automatacontrols/bms-core/internal/resilience"
	"github.com/automatacontrols/bms-core/pkg/metrics"
)

// DefaultFreshnessWindow is the default age past which a sample is marked
// stale rather than current.
const DefaultFreshnessWindow = 5 * time.Minute

// DefaultSiteQPS bounds outbound query volume per site against the
// telemetry store.
const DefaultSiteQPS = 10

// MetricSample is one equipment reading as returned by the telemetry store.
// Fields holds every column the store returned beyond time/equipment
// identity verbatim; equipment control logic (internal/equipment) is
// responsible for the documented name-fallback lookups (e.g. "supply" |
// "Supply" | "SupplyTemp" | ...), not this package.
type MetricSample struct {
	EquipmentID string
	Time        time.Time
	Fields      map[string]any
	Stale       bool
	Age         time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL          string
	Database         string
	HTTPClient       *http.Client
	FreshnessWindow  time.Duration
	ReadTimeout      time.Duration
	SiteQPS          float64
	RetryPolicy      *resilience.RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.SiteQPS <= 0 {
		c.SiteQPS = DefaultSiteQPS
	}
	if c.RetryPolicy == nil {
		c.RetryPolicy = resilience.DefaultRetryPolicy()
		c.RetryPolicy.OperationName = "telemetry_read"
		c.RetryPolicy.ErrorChecker = resilience.NewHTTPErrorChecker()
	}
	return c
}

// Client reads metric samples for a site's equipment. One Client is
// constructed by the orchestrator and shared by every site's scheduler and
// worker pool; per-site rate limiters are created lazily and kept for the
// Client's lifetime.
type Client struct {
	cfg Config
	m   *metrics.TelemetryMetrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a telemetry Client. m may be nil, in which case read
// durations and errors are not recorded.
func New(cfg Config, m *metrics.TelemetryMetrics) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		m:        m,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(siteID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[siteID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.SiteQPS), int(c.cfg.SiteQPS))
		c.limiters[siteID] = l
	}
	return l
}

// ReadLatest returns the newest sample for an equipment. A sample older
// than the freshness window is still returned, with Stale=true, rather
// than surfaced as not-found, per spec.md §4.2.
func (c *Client) ReadLatest(ctx context.Context, siteID, equipmentID string) (*MetricSample, error) {
	samples, err := c.ReadRange(ctx, siteID, equipmentID, time.Time{}, time.Time{}, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNotFound
	}
	sample := samples[0]
	age := time.Since(sample.Time)
	sample.Age = age
	sample.Stale = age > c.cfg.FreshnessWindow
	if sample.Stale && c.m != nil {
		c.m.RecordStaleRead(equipmentType(equipmentID))
	}
	return &sample, nil
}

// ReadRange returns up to limit samples for an equipment between from and
// to (zero values mean unbounded), newest first. Used by the lead-lag
// coordinator for health trend queries.
func (c *Client) ReadRange(ctx context.Context, siteID, equipmentID string, from, to time.Time, limit int) ([]MetricSample, error) {
	if err := c.limiterFor(siteID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("telemetry rate limit wait: %w", err)
	}

	query := buildQuery(equipmentID, from, to, limit)

	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	start := time.Now()
	rows, err := resilience.WithRetryFunc(readCtx, c.cfg.RetryPolicy, func() ([]map[string]any, error) {
		return c.querySQL(readCtx, query)
	})
	duration := time.Since(start)

	if c.m != nil {
		c.m.RecordRead(equipmentType(equipmentID), duration, err)
	}
	if err != nil {
		return nil, err
	}

	samples := make([]MetricSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, rowToSample(equipmentID, row))
	}
	return samples, nil
}

func buildQuery(equipmentID string, from, to time.Time, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT * FROM metrics WHERE equipment_id = %s", quoteSQL(equipmentID)))
	if !from.IsZero() {
		sb.WriteString(fmt.Sprintf(" AND time >= %s", quoteSQL(from.UTC().Format(time.RFC3339Nano))))
	}
	if !to.IsZero() {
		sb.WriteString(fmt.Sprintf(" AND time <= %s", quoteSQL(to.UTC().Format(time.RFC3339Nano))))
	}
	sb.WriteString(" ORDER BY time DESC")
	if limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	return sb.String()
}

func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type querySQLRequest struct {
	Q  string `json:"q"`
	DB string `json:"db"`
}

func (c *Client) querySQL(ctx context.Context, query string) ([]map[string]any, error) {
	body, err := json.Marshal(querySQLRequest{Q: query, DB: c.cfg.Database})
	if err != nil {
		return nil, fmt.Errorf("marshal query_sql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/query_sql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query_sql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query_sql request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read query_sql response: %w", err)
	}

	if resp.StatusCode >= 400 {
		httpErr := fmt.Errorf("query_sql returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
		if resp.StatusCode >= 500 {
			return nil, httpErr
		}
		// 4xx is a permanent error: wrap ErrNonRetryable so the checker
		// (which otherwise defaults unrecognized errors to retryable) stops.
		return nil, fmt.Errorf("%w: %w", resilience.ErrNonRetryable, httpErr)
	}

	var rows []map[string]any
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("decode query_sql response: %w", err)
	}
	return rows, nil
}

func rowToSample(equipmentID string, row map[string]any) MetricSample {
	sample := MetricSample{
		EquipmentID: equipmentID,
		Fields:      make(map[string]any, len(row)),
	}
	for k, v := range row {
		switch k {
		case "time", "Time":
			if str, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339, str); err == nil {
					sample.Time = t
					continue
				}
			}
		case "equipment_id":
			continue
		}
		sample.Fields[k] = v
	}
	return sample
}

func equipmentType(equipmentID string) string {
	if idx := strings.IndexByte(equipmentID, '-'); idx > 0 {
		return equipmentID[:idx]
	}
	return "unknown"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
