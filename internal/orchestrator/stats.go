package orchestrator

import (
	"context"
	"time"

	"github.com/automatacontrols/bms-core/internal/queue"
)

// SiteStatus is one site's entry in the operational surface (spec.md §4.11:
// "counts of (waiting, delayed, active, completed-24h, failed-24h) jobs per
// site; last-tick timestamps; group lead states").
type SiteStatus struct {
	SiteID              string                `json:"site_id"`
	Queue               queue.SiteQueueStats  `json:"queue"`
	LastTickAt          time.Time             `json:"last_tick_at,omitempty"`
	ConsecutiveFailures int32                 `json:"consecutive_failures"`
	Degraded            bool                  `json:"degraded"`
	Groups              []GroupStatus         `json:"groups,omitempty"`
}

// GroupStatus is one equipment group's lead-lag state, for the operational
// surface's "group lead states".
type GroupStatus struct {
	GroupID        string    `json:"group_id"`
	CurrentLeadID  string    `json:"current_lead_id"`
	LastRotationAt time.Time `json:"last_rotation_at,omitempty"`
	LastFailoverAt time.Time `json:"last_failover_at,omitempty"`
	FailoverCount  int       `json:"failover_count"`
}

// OperationalSurface is the orchestrator's full JSON status payload.
type OperationalSurface struct {
	Sites []SiteStatus `json:"sites"`
	Pool  PoolStatus   `json:"worker_pool"`
}

// PoolStatus mirrors worker.Stats for JSON serialization.
type PoolStatus struct {
	Running  bool `json:"running"`
	Workers  int  `json:"workers"`
	QueueLen int  `json:"queue_len"`
	QueueCap int  `json:"queue_cap"`
}

// Status builds the operational surface by combining the job queue's
// per-site counts, each Scheduler's stats, and every lead-lag group's
// current state.
func (o *Orchestrator) Status(ctx context.Context) (OperationalSurface, error) {
	queueStats, err := o.queue.StatsBySite(ctx)
	if err != nil {
		return OperationalSurface{}, err
	}

	groupsBySite := o.groupsBySite(ctx)

	sites := make([]SiteStatus, 0, len(o.schedulers))
	for _, siteID := range o.siteOrder {
		sched := o.schedulers[siteID]
		st := sched.Stats()
		sites = append(sites, SiteStatus{
			SiteID:              siteID,
			Queue:               queueStats[siteID],
			LastTickAt:          st.LastTickAt,
			ConsecutiveFailures: st.ConsecutiveFailures,
			Degraded:            st.Degraded,
			Groups:              groupsBySite[siteID],
		})
	}

	poolStats := o.pool.Stats()
	return OperationalSurface{
		Sites: sites,
		Pool: PoolStatus{
			Running:  poolStats.Running,
			Workers:  poolStats.Workers,
			QueueLen: poolStats.QueueLen,
			QueueCap: poolStats.QueueCap,
		},
	}, nil
}

// groupsBySite loads every known lead-lag group and reports its lead state,
// tolerating a storage read failure for one site by simply omitting its
// groups rather than failing the whole status call.
func (o *Orchestrator) groupsBySite(ctx context.Context) map[string][]GroupStatus {
	out := make(map[string][]GroupStatus)
	groups, err := o.leadlagStorage.LoadAll(ctx)
	if err != nil {
		o.logger.Warn("operational surface: lead-lag group load failed", "error", err)
		return out
	}
	for _, g := range groups {
		out[g.SiteID] = append(out[g.SiteID], GroupStatus{
			GroupID:        g.GroupID,
			CurrentLeadID:  g.CurrentLeadID,
			LastRotationAt: g.LastRotationAt,
			LastFailoverAt: g.LastFailoverAt,
			FailoverCount:  g.FailoverCount,
		})
	}
	return out
}
