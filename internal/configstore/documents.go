package configstore

import (
	"time"

	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// equipmentDocument is the wire shape of one equipment config document.
// Every field beyond the identity triple is optional: a document missing
// setpoint, gains, or extra simply leaves the corresponding equipment.Config
// field at its Go zero value, which every control function already treats
// as "apply my own documented default" (internal/equipment's Config doc
// comment). Parsing never fails on a missing optional field — only on a
// response that isn't valid JSON at all.
type equipmentDocument struct {
	EquipmentID   string                   `json:"equipment_id"`
	EquipmentType string                   `json:"equipment_type"`
	SiteID        string                   `json:"site_id"`
	LocationID    string                   `json:"location_id"`
	Setpoint      *float64                 `json:"setpoint"`
	Gains         map[string]gainsDocument `json:"gains"`
	Deadband      *float64                 `json:"deadband"`
	GroupID       string                   `json:"group_id"`
	Extra         map[string]any           `json:"extra"`
}

type gainsDocument struct {
	Kp     *float64 `json:"kp"`
	Ki     *float64 `json:"ki"`
	Kd     *float64 `json:"kd"`
	OutMin *float64 `json:"out_min"`
	OutMax *float64 `json:"out_max"`
}

func (d gainsDocument) toGains() pid.Gains {
	return pid.Gains{
		Kp:     floatOr(d.Kp, 0),
		Ki:     floatOr(d.Ki, 0),
		Kd:     floatOr(d.Kd, 0),
		OutMin: floatOr(d.OutMin, 0),
		OutMax: floatOr(d.OutMax, 0),
	}
}

func (d equipmentDocument) toConfig() equipment.Config {
	cfg := equipment.Config{
		EquipmentID:   d.EquipmentID,
		EquipmentType: d.EquipmentType,
		SiteID:        d.SiteID,
		LocationID:    d.LocationID,
		Setpoint:      floatOr(d.Setpoint, 0),
		Deadband:      floatOr(d.Deadband, 0),
		GroupID:       d.GroupID,
		Extra:         d.Extra,
	}
	if len(d.Gains) > 0 {
		cfg.Gains = make(map[string]pid.Gains, len(d.Gains))
		for key, g := range d.Gains {
			cfg.Gains[key] = g.toGains()
		}
	}
	return cfg
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// groupDocument is the wire shape of one equipment-group config document —
// the static membership and policy a site's groups start from; lead-lag's
// own runtime state (current lead, rotation/failover history) is owned by
// internal/leadlag's Storage once a group has been seeded from this.
type groupDocument struct {
	GroupID          string   `json:"group_id"`
	SiteID           string   `json:"site_id"`
	Members          []string `json:"members"`
	UseLeadLag       *bool    `json:"use_lead_lag"`
	AutoFailover     *bool    `json:"auto_failover"`
	RotationDays     *float64 `json:"rotation_interval_days"`
}

// GroupConfig is the parsed, defaulted form of a groupDocument.
type GroupConfig struct {
	GroupID          string
	SiteID           string
	Members          []string
	UseLeadLag       bool
	AutoFailover     bool
	RotationInterval time.Duration
}

func (d groupDocument) toGroupConfig() GroupConfig {
	useLeadLag := true
	if d.UseLeadLag != nil {
		useLeadLag = *d.UseLeadLag
	}
	autoFailover := true
	if d.AutoFailover != nil {
		autoFailover = *d.AutoFailover
	}
	rotationDays := DefaultRotationIntervalDays
	if d.RotationDays != nil {
		rotationDays = *d.RotationDays
	}
	return GroupConfig{
		GroupID:          d.GroupID,
		SiteID:           d.SiteID,
		Members:          d.Members,
		UseLeadLag:       useLeadLag,
		AutoFailover:     autoFailover,
		RotationInterval: time.Duration(rotationDays * 24 * float64(time.Hour)),
	}
}
