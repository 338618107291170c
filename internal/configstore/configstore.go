// Package configstore is the read-only HTTP client for the equipment/group
// document store (spec.md §6 "Configuration store"): the runtime source of
// truth the scheduler and worker re-read on every cycle, not the
// process-level static configuration internal/config loads once at start.
// Grounded on internal/telemetry's HTTP-client shape (retry-classified GET,
// JSON body, per-call timeout) since both are simple read-only JSON-over-
// HTTP clients against an internal service; the documented-default
// tolerance for missing fields lives in documents.go's DTO conversion.
package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/resilience"
)

// DefaultRotationIntervalDays is applied to a group document that doesn't
// name its own rotation interval — matches spec.md §6's
// LEAD_LAG_ROTATION_INTERVAL_DAYS default override description.
const DefaultRotationIntervalDays = 7.0

// Config configures a Client.
type Config struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	RetryPolicy *resilience.RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryPolicy == nil {
		c.RetryPolicy = resilience.DefaultRetryPolicy()
		c.RetryPolicy.OperationName = "configstore_read"
		c.RetryPolicy.ErrorChecker = resilience.NewHTTPErrorChecker()
	}
	return c
}

// Client reads Equipment and Group config documents. One Client is
// constructed by the orchestrator and shared by the worker pool (via
// EquipmentConfig) and every site's scheduler (via ListEquipment, normally
// wrapped in scheduler.NewCachedConfigProvider).
type Client struct {
	cfg Config
}

// New creates a configstore Client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// EquipmentConfig fetches one equipment's config document. Satisfies
// internal/worker's ConfigProvider interface.
func (c *Client) EquipmentConfig(ctx context.Context, siteID, equipmentID string) (equipment.Config, error) {
	path := fmt.Sprintf("/sites/%s/equipment/%s", url.PathEscape(siteID), url.PathEscape(equipmentID))
	var doc equipmentDocument
	if err := c.getJSON(ctx, path, &doc); err != nil {
		return equipment.Config{}, fmt.Errorf("configstore: equipment config for %s/%s: %w", siteID, equipmentID, err)
	}
	return doc.toConfig(), nil
}

// ListEquipment fetches every equipment document for a site. Satisfies
// internal/scheduler's ConfigProvider interface.
func (c *Client) ListEquipment(ctx context.Context, siteID string) ([]equipment.Config, error) {
	path := fmt.Sprintf("/sites/%s/equipment", url.PathEscape(siteID))
	var docs []equipmentDocument
	if err := c.getJSON(ctx, path, &docs); err != nil {
		return nil, fmt.Errorf("configstore: list equipment for site %s: %w", siteID, err)
	}
	configs := make([]equipment.Config, 0, len(docs))
	for _, d := range docs {
		configs = append(configs, d.toConfig())
	}
	return configs, nil
}

// ListGroups fetches every equipment-group document for a site, for the
// orchestrator to seed internal/leadlag's Storage at site start.
func (c *Client) ListGroups(ctx context.Context, siteID string) ([]GroupConfig, error) {
	path := fmt.Sprintf("/sites/%s/groups", url.PathEscape(siteID))
	var docs []groupDocument
	if err := c.getJSON(ctx, path, &docs); err != nil {
		return nil, fmt.Errorf("configstore: list groups for site %s: %w", siteID, err)
	}
	groups := make([]GroupConfig, 0, len(docs))
	for _, d := range docs {
		groups = append(groups, d.toGroupConfig())
	}
	return groups, nil
}

// getJSON issues a retried GET against path and decodes the JSON response
// body into out. 5xx and network errors retry; 4xx does not, since a
// missing or malformed document is a permanent condition no retry fixes.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return resilience.WithRetry(ctx, c.cfg.RetryPolicy, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
