package leadlag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/automatacontrols/bms-core/internal/lock"
)

const (
	healthCheckCooldown = 30 * time.Second
	rotationCooldown    = 5 * time.Minute

	safetySupplyTempF = 170.0
)

// Coordinator implements spec.md's lead-lag algorithm (§4.7) against a
// Storage-backed group state. One Coordinator is shared by a site's
// scheduler across every control-function invocation that touches a
// lead-lag group.
type Coordinator struct {
	storage Storage
	redis   *redis.Client
	logger  *slog.Logger

	// lockConfig governs the race-guard lock taken around each Decide call
	// when redis is non-nil. Without a Redis client, Decide relies on the
	// caller's own serialization (single scheduler goroutine per site).
	lockConfig *lock.LockConfig
}

// NewCoordinator creates a Coordinator. redisClient may be nil, in which
// case Decide skips the distributed race-guard and relies on the caller
// to serialize concurrent evaluations of the same group (true for a single
// site scheduler, but not across a horizontally scaled deployment).
func NewCoordinator(storage Storage, redisClient *redis.Client, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		storage: storage,
		redis:   redisClient,
		logger:  logger,
		lockConfig: &lock.LockConfig{
			TTL:            5 * time.Second,
			MaxRetries:     3,
			RetryInterval:  50 * time.Millisecond,
			AcquireTimeout: 2 * time.Second,
			ReleaseTimeout: time.Second,
			ValuePrefix:    "leadlag",
		},
	}
}

// Decide evaluates a group on behalf of callerEquipmentID, persists any
// resulting transition, and returns whether the caller should run as lead.
//
// Two concurrent workers can each be evaluating a different lag member of
// the same group within the same tick; without serialization both could
// observe the lead as unhealthy and both promote themselves. Decide guards
// the read-modify-write with a DistributedLock keyed on the group when a
// Redis client is available — an addition the spec's prose algorithm does
// not name (see DESIGN.md).
func (c *Coordinator) Decide(ctx context.Context, key GroupKey, callerEquipmentID string, metrics MetricsView, now time.Time) (Decision, error) {
	if c.redis != nil {
		l := lock.NewDistributedLock(c.redis, "leadlag:decide:"+string(key), c.lockConfig, c.logger)
		acquired, err := l.AcquireWithRetry(ctx, c.lockConfig.MaxRetries)
		if err != nil {
			return Decision{}, fmt.Errorf("acquire lead-lag group lock: %w", err)
		}
		if !acquired {
			return Decision{}, fmt.Errorf("could not acquire lead-lag group lock for %s", key)
		}
		defer func() {
			if err := l.Release(ctx); err != nil {
				c.logger.Warn("failed to release lead-lag group lock", "group_key", key, "error", err)
			}
		}()
	}

	group, err := c.storage.Load(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("load group %s: %w", key, err)
	}

	decision := c.decide(group, callerEquipmentID, metrics, now)

	if err := c.storage.Store(ctx, group); err != nil {
		return Decision{}, fmt.Errorf("store group %s: %w", key, err)
	}

	return decision, nil
}

// decide is the pure core of the algorithm (spec.md §4.7 steps 1-6),
// mutating group in place and returning the decision for callerEquipmentID.
func (c *Coordinator) decide(group *Group, callerEquipmentID string, m MetricsView, now time.Time) Decision {
	if !group.UseLeadLag {
		return Decision{IsLead: true, ShouldRun: true, Reason: "lead-lag disabled, every member is its own lead"}
	}

	if len(group.Members) == 1 {
		group.CurrentLeadID = group.Members[0]
		return Decision{IsLead: true, ShouldRun: true, Reason: "group has a single member"}
	}

	var events []Event
	lead := group.CurrentLeadID

	// Step 3: health check the lead at most once per 30s of wall time.
	// Calls that land inside the cooldown window reuse the cached verdict
	// from the last check rather than re-evaluating m.
	if now.Sub(group.LastHealthCheck) >= healthCheckCooldown {
		group.LastHealthCheck = now
		group.LeadUnhealthy = unhealthy(m)
	}

	// Step 4: failover.
	if group.LeadUnhealthy && group.AutoFailover && callerEquipmentID != lead {
		group.CurrentLeadID = callerEquipmentID
		group.LastFailoverAt = now
		group.FailoverCount++
		group.LeadUnhealthy = false
		events = append(events, Event{
			GroupKey:    group.Key,
			EquipmentID: callerEquipmentID,
			Kind:        EventFailover,
			Reason:      "lead failure detected: " + healthReason(m),
			At:          now,
		})
		lead = callerEquipmentID
	}

	// Step 5: rotation check at most once per 5 min. LastRotationCheckAt
	// gates how often the condition is even evaluated; LastRotationAt only
	// advances on an actual rotation and drives the rotation-interval
	// comparison, so the two must not be conflated (a five-minute throttle
	// on the check must not reset the days-long rotation-interval clock).
	if group.RotationInterval > 0 && now.Sub(group.LastRotationCheckAt) >= rotationCooldown {
		group.LastRotationCheckAt = now

		if group.LastRotationAt.IsZero() {
			// A group that has never rotated starts its interval clock here.
			group.LastRotationAt = now
		} else if now.Sub(group.LastRotationAt) >= group.RotationInterval {
			next := group.NextMember(lead)
			if next != "" && next != lead {
				group.CurrentLeadID = next
				group.LastRotationAt = now
				events = append(events, Event{
					GroupKey:    group.Key,
					EquipmentID: next,
					Kind:        EventRotation,
					Reason:      "scheduled rotation",
					At:          now,
				})
				lead = next
			} else {
				group.LastRotationAt = now
			}
		}
	}

	// Step 6.
	if callerEquipmentID == lead {
		return Decision{IsLead: true, ShouldRun: true, Reason: "caller is current lead", Events: events}
	}
	return Decision{
		IsLead:    false,
		ShouldRun: false,
		Reason:    fmt.Sprintf("caller is lag; current lead is %s", lead),
		Events:    events,
	}
}

// unhealthy implements the boiler health predicate from spec.md §4.7 step 3.
// Missing telemetry fails open (returns healthy) to avoid oscillation on a
// transient reader failure.
func unhealthy(m MetricsView) bool {
	if m.Missing {
		return false
	}
	if m.SupplyTempF > safetySupplyTempF {
		return true
	}
	if m.Freezestat {
		return true
	}
	status := strings.ToLower(m.Status)
	if strings.Contains(status, "fault") || strings.Contains(status, "error") {
		return true
	}
	return false
}

func healthReason(m MetricsView) string {
	switch {
	case m.SupplyTempF > safetySupplyTempF:
		return fmt.Sprintf("supply temp %.1f°F exceeds safety limit", m.SupplyTempF)
	case m.Freezestat:
		return "freezestat tripped"
	default:
		return "status reports fault/error: " + m.Status
	}
}

// HandleMembershipChange applies an added or removed member to a group and
// persists the result. Removing the current lead promotes the next member
// and counts as a failover (LastFailoverAt, FailoverCount); no Event is
// returned or recorded for it.
func (c *Coordinator) HandleMembershipChange(ctx context.Context, key GroupKey, add, remove string, now time.Time) error {
	group, err := c.storage.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load group %s: %w", key, err)
	}

	if add != "" {
		group.AddMember(add)
	}
	if remove != "" {
		promoted, wasLead := group.RemoveMember(remove)
		if wasLead && promoted != "" {
			group.LastFailoverAt = now
			group.FailoverCount++
		}
	}

	return c.storage.Store(ctx, group)
}
