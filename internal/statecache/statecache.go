// Package statecache provides the typed view over the Redis-backed state
// cache: "what the UI sees now" for a piece of equipment, as distinct from
// the time-series command sink, which is authoritative for history.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/automatacontrols/bms-core/internal/cache"
)

const liveStateTTL = 24 * time.Hour

// EquipmentState is the JSON blob stored at equipment:<id>:state.
type EquipmentState struct {
	Fields          map[string]any `json:"-"`
	LastModified    time.Time      `json:"lastModified"`
	ModifiedBy      string         `json:"modifiedBy"`
	ModifiedByName  string         `json:"modifiedByName,omitempty"`
}

// MarshalJSON flattens Fields alongside the fixed metadata keys so the
// persisted blob matches spec.md §6's shape exactly (command fields are not
// nested under a sub-object).
func (s EquipmentState) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Fields)+3)
	for k, v := range s.Fields {
		flat[k] = v
	}
	flat["lastModified"] = s.LastModified
	flat["modifiedBy"] = s.ModifiedBy
	if s.ModifiedByName != "" {
		flat["modifiedByName"] = s.ModifiedByName
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reconstructs Fields from the flattened blob.
func (s *EquipmentState) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	s.Fields = make(map[string]any, len(flat))
	for k, v := range flat {
		switch k {
		case "lastModified":
			if str, ok := v.(string); ok {
				t, err := time.Parse(time.RFC3339, str)
				if err == nil {
					s.LastModified = t
				}
			}
		case "modifiedBy":
			if str, ok := v.(string); ok {
				s.ModifiedBy = str
			}
		case "modifiedByName":
			if str, ok := v.(string); ok {
				s.ModifiedByName = str
			}
		default:
			s.Fields[k] = v
		}
	}
	return nil
}

// Cache is the typed wrapper over internal/cache.Cache for the BMS state
// keyspace. One Cache is constructed by the orchestrator and threaded down.
type Cache struct {
	backend cache.Cache
}

// New wraps a cache.Cache backend (Redis in production, the teacher's same
// interface in tests).
func New(backend cache.Cache) *Cache {
	return &Cache{backend: backend}
}

func stateKey(equipmentID string) string    { return fmt.Sprintf("equipment:%s:state", equipmentID) }
func lastModKey(equipmentID string) string  { return fmt.Sprintf("equipment:%s:lastmod", equipmentID) }
func oarKey(equipmentID string) string       { return fmt.Sprintf("equipment:%s:oar", equipmentID) }
func leadLagKey(groupID string) string      { return fmt.Sprintf("group:%s:lead-lag", groupID) }

// GetState reads the current equipment state. Returns cache.ErrNotFound if unset.
func (c *Cache) GetState(ctx context.Context, equipmentID string) (*EquipmentState, error) {
	var state EquipmentState
	if err := c.backend.Get(ctx, stateKey(equipmentID), &state); err != nil {
		return nil, fmt.Errorf("get equipment state %s: %w", equipmentID, err)
	}
	return &state, nil
}

// SetState stores equipment state with the normative 24h live-state TTL and
// records the lastmod timestamp as its own key for cheap staleness checks.
func (c *Cache) SetState(ctx context.Context, equipmentID string, fields map[string]any, modifiedBy, modifiedByName string) error {
	now := time.Now().UTC()
	state := EquipmentState{
		Fields:         fields,
		LastModified:   now,
		ModifiedBy:     modifiedBy,
		ModifiedByName: modifiedByName,
	}

	if err := c.backend.Set(ctx, stateKey(equipmentID), state, liveStateTTL); err != nil {
		return fmt.Errorf("set equipment state %s: %w", equipmentID, err)
	}
	if err := c.backend.Set(ctx, lastModKey(equipmentID), now.Format(time.RFC3339Nano), liveStateTTL); err != nil {
		return fmt.Errorf("set equipment lastmod %s: %w", equipmentID, err)
	}
	return nil
}

// LastModified returns the last-modified timestamp recorded for an equipment,
// or the zero time if none has been recorded.
func (c *Cache) LastModified(ctx context.Context, equipmentID string) (time.Time, error) {
	var raw string
	if err := c.backend.Get(ctx, lastModKey(equipmentID), &raw); err != nil {
		if cache.IsNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get equipment lastmod %s: %w", equipmentID, err)
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// GetOAR reads the current OAR setpoint for an equipment, or 0 if unset.
func (c *Cache) GetOAR(ctx context.Context, equipmentID string) (float64, error) {
	var value float64
	if err := c.backend.Get(ctx, oarKey(equipmentID), &value); err != nil {
		if cache.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get equipment oar %s: %w", equipmentID, err)
	}
	return value, nil
}

// SetOAR stores the computed OAR setpoint for an equipment.
func (c *Cache) SetOAR(ctx context.Context, equipmentID string, setpoint float64) error {
	if err := c.backend.Set(ctx, oarKey(equipmentID), setpoint, liveStateTTL); err != nil {
		return fmt.Errorf("set equipment oar %s: %w", equipmentID, err)
	}
	return nil
}

// LeadLagSnapshot is the persisted projection of a lead-lag group, per
// spec.md §6's `group:<id>:lead-lag` key.
type LeadLagSnapshot struct {
	CurrentLeadID  string    `json:"current-lead-id"`
	LastRotationAt time.Time `json:"last-rotation-at"`
	LastFailoverAt time.Time `json:"last-failover-at"`
	FailoverCount  int       `json:"failover-count"`
}

// SetLeadLagSnapshot publishes a lead-lag group's current state to the
// normative cache key so UI and operator tooling can read it without going
// through the group's own authoritative storage.
func (c *Cache) SetLeadLagSnapshot(ctx context.Context, groupID string, snapshot LeadLagSnapshot) error {
	if err := c.backend.Set(ctx, leadLagKey(groupID), snapshot, liveStateTTL); err != nil {
		return fmt.Errorf("set lead-lag snapshot %s: %w", groupID, err)
	}
	return nil
}

// GetLeadLagSnapshot reads the published lead-lag snapshot for a group.
func (c *Cache) GetLeadLagSnapshot(ctx context.Context, groupID string) (*LeadLagSnapshot, error) {
	var snapshot LeadLagSnapshot
	if err := c.backend.Get(ctx, leadLagKey(groupID), &snapshot); err != nil {
		return nil, fmt.Errorf("get lead-lag snapshot %s: %w", groupID, err)
	}
	return &snapshot, nil
}

// Ping verifies the underlying cache backend is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}
