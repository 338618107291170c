// Package leadlag coordinates redundant equipment groups (e.g. two boilers
// sharing a load) so exactly one member runs as lead at any instant, with
// automatic failover on fault and scheduled rotation for wear balancing.
package leadlag

import (
	"sync"
	"time"
)

// GroupKey identifies an equipment group, scoped by site.
type GroupKey string

// NewGroupKey builds the canonical key for a site/group pair.
func NewGroupKey(siteID, groupID string) GroupKey {
	return GroupKey(siteID + ":" + groupID)
}

// EventKind enumerates the kinds of lead-lag audit events.
type EventKind string

const (
	EventRotation       EventKind = "rotation"
	EventFailover       EventKind = "failover"
	EventManualOverride EventKind = "manual-override"
)

// Event is an audit record of a lead-lag transition.
type Event struct {
	GroupKey    GroupKey  `json:"group_key"`
	EquipmentID string    `json:"equipment_id"`
	Kind        EventKind `json:"kind"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// Group holds the persisted state of a redundant equipment group.
//
// Invariant: CurrentLeadID is always a member; exactly one lead at any time;
// the lead is healthy unless no healthy member exists.
type Group struct {
	Key GroupKey `json:"key"`

	SiteID  string `json:"site_id"`
	GroupID string `json:"group_id"`

	// Members holds equipment IDs in rotation order. Order determines both
	// tie-breaking and the next lead on rotation/removal.
	Members []string `json:"members"`

	CurrentLeadID string `json:"current_lead_id"`

	UseLeadLag   bool `json:"use_lead_lag"`
	AutoFailover bool `json:"auto_failover"`

	RotationInterval time.Duration `json:"rotation_interval"`
	LastRotationAt   time.Time     `json:"last_rotation_at"`
	LastFailoverAt   time.Time     `json:"last_failover_at"`
	LastHealthCheck  time.Time     `json:"last_health_check"`
	FailoverCount    int           `json:"failover_count"`

	// LastRotationCheckAt tracks when the rotation condition was last
	// evaluated at all, throttled to once per rotationCooldown independently
	// of LastRotationAt (which only advances on an actual rotation and
	// drives the rotation-interval comparison).
	LastRotationCheckAt time.Time `json:"last_rotation_check_at"`

	// LeadUnhealthy caches the outcome of the last health check so calls
	// that land inside the 30s cooldown reuse it instead of re-evaluating.
	// Zero value (false) is the correct default: a freshly created group's
	// lead is presumed healthy until a check says otherwise.
	LeadUnhealthy bool `json:"lead_unhealthy"`

	// Version supports optimistic locking in the Redis store.
	Version int64 `json:"version"`

	mu sync.RWMutex
}

// Clone returns a deep copy safe for concurrent mutation by the caller.
func (g *Group) Clone() *Group {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members := make([]string, len(g.Members))
	copy(members, g.Members)

	return &Group{
		Key:              g.Key,
		SiteID:           g.SiteID,
		GroupID:          g.GroupID,
		Members:          members,
		CurrentLeadID:    g.CurrentLeadID,
		UseLeadLag:       g.UseLeadLag,
		AutoFailover:     g.AutoFailover,
		RotationInterval: g.RotationInterval,
		LastRotationAt:   g.LastRotationAt,
		LastFailoverAt:   g.LastFailoverAt,
		LastHealthCheck:     g.LastHealthCheck,
		FailoverCount:       g.FailoverCount,
		LeadUnhealthy:       g.LeadUnhealthy,
		LastRotationCheckAt: g.LastRotationCheckAt,
		Version:             g.Version,
	}
}

// MemberIndex returns the position of equipmentID in Members, or -1.
func (g *Group) MemberIndex(equipmentID string) int {
	for i, m := range g.Members {
		if m == equipmentID {
			return i
		}
	}
	return -1
}

// NextMember returns the member following equipmentID in rotation order,
// wrapping around. Returns "" if equipmentID is not a member or the group
// is empty.
func (g *Group) NextMember(equipmentID string) string {
	idx := g.MemberIndex(equipmentID)
	if idx == -1 || len(g.Members) == 0 {
		return ""
	}
	return g.Members[(idx+1)%len(g.Members)]
}

// RemoveMember removes equipmentID from the group. If it was the current
// lead, the next member in order becomes lead immediately (the caller is
// responsible for emitting the resulting failover event).
func (g *Group) RemoveMember(equipmentID string) (promotedTo string, wasLead bool) {
	idx := g.MemberIndex(equipmentID)
	if idx == -1 {
		return "", false
	}

	wasLead = g.CurrentLeadID == equipmentID
	g.Members = append(g.Members[:idx], g.Members[idx+1:]...)

	if !wasLead || len(g.Members) == 0 {
		return "", wasLead
	}

	promotedTo = g.Members[idx%len(g.Members)]
	g.CurrentLeadID = promotedTo
	return promotedTo, wasLead
}

// AddMember appends equipmentID to the group if not already present.
func (g *Group) AddMember(equipmentID string) {
	if g.MemberIndex(equipmentID) != -1 {
		return
	}
	g.Members = append(g.Members, equipmentID)
	if g.CurrentLeadID == "" {
		g.CurrentLeadID = equipmentID
	}
}

// MetricsView is the subset of telemetry the coordinator needs to evaluate
// the current lead's health. Callers always populate it from the lead
// equipment's own metrics — even when Decide is invoked on behalf of a lag
// member, since it is the lead's health that step 3 of the algorithm
// evaluates, not the caller's.
type MetricsView struct {
	SupplyTempF float64
	Freezestat  bool
	Status      string
	Missing     bool // true when telemetry could not be read for this tick
}

// Decision is the result of a Decide call.
type Decision struct {
	IsLead    bool
	ShouldRun bool
	Reason    string
	Events    []Event
}
