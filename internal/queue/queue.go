// Package queue implements the priority job queue (spec.md §4.8): a
// durable, Postgres-backed FIFO-within-priority queue with per-key dedup,
// exponential-backoff retry, and stall detection. The atomic reserve and
// the dedup upsert both rely on the database rather than an in-memory
// mutex, so they are safe across any number of worker processes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/automatacontrols/bms-core/internal/postgres"
)

// Job kinds, per spec.md §4.8.
const (
	KindProcessEquipment   = "process-equipment"
	KindApplyUserCommand   = "apply-user-command"
	KindEmergencyShutdown  = "emergency-shutdown"
)

// Status values a job moves through.
const (
	StatusWaiting = "waiting"
	StatusDelayed = "delayed"
	StatusActive  = "active"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Priority levels spec.md §4.8 names explicitly; anything else is a plain
// integer 1 (highest) to 10 (lowest). Enqueue treats a zero priority as
// unset and replaces it with PriorityNormal, so 0 itself is never stored.
const (
	PriorityEmergency = 1
	PriorityNormal    = 10
)

const (
	// DefaultAttemptsMax bounds retries before a job is terminally failed.
	DefaultAttemptsMax = 3
	// DefaultStallTimeout is how long a job may stay "active" before
	// stall-detect requeues it.
	DefaultStallTimeout = 60 * time.Second
	// backoffBase is the "2s" in backoff(n) = base * 2^n.
	backoffBase = 2 * time.Second
)

// ErrNotFound is returned by Inspect when no job matches the given id.
var ErrNotFound = errors.New("queue: job not found")

// Job mirrors spec.md §4.8's job record.
type Job struct {
	ID           int64
	Kind         string
	SiteID       string
	EquipmentID  string
	DedupKey     string
	Payload      json.RawMessage
	Priority     int
	Status       string
	AttemptsMade int
	AttemptsMax  int
	LastError    string
	EnqueuedAt   time.Time
	ScheduledAt  time.Time
	ReservedAt   *time.Time
	Deadline     *time.Time
}

// EnqueueRequest is the input to Enqueue.
type EnqueueRequest struct {
	Kind        string
	SiteID      string
	EquipmentID string
	Payload     any
	Priority    int // 1 (highest) .. 10 (lowest); zero means PriorityNormal; callers normally pass PriorityEmergency or PriorityNormal
	ScheduledAt time.Time
	AttemptsMax int
}

// dedupKey is the (equipment-id, kind) tuple spec.md §4.8 dedups on.
func dedupKey(equipmentID, kind string) string {
	return equipmentID + "\x00" + kind
}

// Queue is the job queue client. It is constructed once by the
// orchestrator and passed to the scheduler (producer) and worker pool
// (consumer) — no package-level singleton, per spec.md §9.
type Queue struct {
	db postgres.DatabaseConnection
}

// New creates a Queue over an already-connected pool.
func New(db postgres.DatabaseConnection) *Queue {
	return &Queue{db: db}
}

// Enqueue implements spec.md §4.8's enqueue contract: a no-op returning
// the existing job-id if an active job with the same dedup-key exists,
// unless the new job has strictly higher priority, in which case the
// existing job's priority is raised.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (int64, error) {
	if req.Priority == 0 {
		req.Priority = PriorityNormal
	}
	if req.Kind == KindEmergencyShutdown {
		req.Priority = PriorityEmergency
	}
	if req.AttemptsMax == 0 {
		req.AttemptsMax = DefaultAttemptsMax
	}
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = time.Now()
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	key := dedupKey(req.EquipmentID, req.Kind)

	var id int64
	row := q.db.QueryRow(ctx, `
		INSERT INTO jobs (kind, site_id, equipment_id, dedup_key, payload, priority, status, attempts_max, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'waiting', $7, $8)
		ON CONFLICT (dedup_key) WHERE status IN ('waiting', 'delayed', 'active')
		DO UPDATE SET priority = LEAST(jobs.priority, EXCLUDED.priority)
		RETURNING id
	`, req.Kind, req.SiteID, req.EquipmentID, key, payload, req.Priority, req.AttemptsMax, req.ScheduledAt)

	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// Reserve atomically picks the highest-priority ready job (lowest
// priority number, then oldest scheduled_at, then oldest enqueued_at),
// marks it active, and increments attempts_made — giving atomic
// reserve-and-increment over a transactional store.
func (q *Queue) Reserve(ctx context.Context) (*Job, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, kind, site_id, equipment_id, dedup_key, payload, priority, status,
		       attempts_made, attempts_max, last_error, enqueued_at, scheduled_at, reserved_at, deadline
		FROM jobs
		WHERE status IN ('waiting', 'delayed') AND scheduled_at <= now()
		ORDER BY priority, scheduled_at, enqueued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reserve select: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'active', attempts_made = attempts_made + 1, reserved_at = $2
		WHERE id = $1
	`, job.ID, now); err != nil {
		return nil, fmt.Errorf("reserve update: %w", err)
	}
	job.AttemptsMade++
	job.Status = StatusActive
	job.ReservedAt = &now

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return job, nil
}

// Complete marks a job done.
func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	_, err := q.db.Exec(ctx, `UPDATE jobs SET status = 'done' WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	return nil
}

// Fail implements spec.md §4.8's retry/backoff rule: reschedule with
// exponential backoff while attempts remain, otherwise mark terminal.
func (q *Queue) Fail(ctx context.Context, jobID int64, reason string) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var attemptsMade, attemptsMax int
	if err := tx.QueryRow(ctx, `SELECT attempts_made, attempts_max FROM jobs WHERE id = $1 FOR UPDATE`, jobID).
		Scan(&attemptsMade, &attemptsMax); err != nil {
		return fmt.Errorf("fail select: %w", err)
	}

	if attemptsMade < attemptsMax {
		delay := backoff(attemptsMade)
		if _, err := tx.Exec(ctx, `
			UPDATE jobs SET status = 'delayed', scheduled_at = $2, last_error = $3
			WHERE id = $1
		`, jobID, time.Now().Add(delay), reason); err != nil {
			return fmt.Errorf("fail reschedule: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE jobs SET status = 'failed', last_error = $2 WHERE id = $1
		`, jobID, reason); err != nil {
			return fmt.Errorf("fail terminal: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// backoff implements backoff(n) = base * 2^n.
func backoff(attemptsMade int) time.Duration {
	return backoffBase * time.Duration(1<<uint(attemptsMade))
}

// StallDetect requeues any job active past the given stall timeout as a
// failed attempt with reason "stalled": like Fail, it reschedules the job
// with backoff(attempts_made) while attempts remain and otherwise marks it
// terminally failed — grounded on the teacher's periodic GC-worker sweep
// pattern (internal/business/silencing's gcWorker), adapted from a
// two-phase expire/delete sweep to a single requeue-if-stalled sweep.
// Callers wanting the documented default should pass DefaultStallTimeout
// explicitly; a zero value here means "anything currently active",
// which is a deliberate and testable edge case, not a missing setting.
func (q *Queue) StallDetect(ctx context.Context, stallTimeout time.Duration) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET
			status = CASE WHEN attempts_made < attempts_max THEN 'delayed' ELSE 'failed' END,
			scheduled_at = CASE WHEN attempts_made < attempts_max
				THEN now() + make_interval(secs => $2 * power(2, attempts_made))
				ELSE scheduled_at END,
			last_error = 'stalled'
		WHERE status = 'active' AND reserved_at < $1
	`, time.Now().Add(-stallTimeout), backoffBase.Seconds())
	if err != nil {
		return 0, fmt.Errorf("stall detect: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DepthBySite returns the count of not-yet-done jobs (waiting, delayed, or
// active) per site, for the worker pool's queue-depth metric.
func (q *Queue) DepthBySite(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.Query(ctx, `
		SELECT site_id, count(*) FROM jobs
		WHERE status IN ('waiting', 'delayed', 'active')
		GROUP BY site_id
	`)
	if err != nil {
		return nil, fmt.Errorf("depth by site: %w", err)
	}
	defer rows.Close()

	depths := make(map[string]int)
	for rows.Next() {
		var siteID string
		var count int
		if err := rows.Scan(&siteID, &count); err != nil {
			return nil, fmt.Errorf("depth by site scan: %w", err)
		}
		depths[siteID] = count
	}
	return depths, rows.Err()
}

// SiteQueueStats is one site's job counts for the orchestrator's
// operational-surface endpoint (spec.md §4.11).
type SiteQueueStats struct {
	Waiting      int
	Delayed      int
	Active       int
	Completed24h int
	Failed24h    int
}

// StatsBySite returns the operational-surface job counts per site: current
// waiting/delayed/active counts, plus done/failed counts bounded to the
// last 24h (the same retention window spec.md §3's Job lifecycle names for
// completed/failed jobs).
func (q *Queue) StatsBySite(ctx context.Context) (map[string]SiteQueueStats, error) {
	rows, err := q.db.Query(ctx, `
		SELECT site_id, status, count(*)
		FROM jobs
		WHERE status IN ('waiting', 'delayed', 'active')
		   OR (status = 'done' AND enqueued_at > now() - interval '24 hours')
		   OR (status = 'failed' AND enqueued_at > now() - interval '24 hours')
		GROUP BY site_id, status
	`)
	if err != nil {
		return nil, fmt.Errorf("stats by site: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]SiteQueueStats)
	for rows.Next() {
		var siteID, status string
		var count int
		if err := rows.Scan(&siteID, &status, &count); err != nil {
			return nil, fmt.Errorf("stats by site scan: %w", err)
		}
		s := stats[siteID]
		switch status {
		case StatusWaiting:
			s.Waiting = count
		case StatusDelayed:
			s.Delayed = count
		case StatusActive:
			s.Active = count
		case StatusDone:
			s.Completed24h = count
		case StatusFailed:
			s.Failed24h = count
		}
		stats[siteID] = s
	}
	return stats, rows.Err()
}

// Inspect returns a job by id, for the CLI's "inspect" subcommand.
func (q *Queue) Inspect(ctx context.Context, jobID int64) (*Job, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, kind, site_id, equipment_id, dedup_key, payload, priority, status,
		       attempts_made, attempts_max, last_error, enqueued_at, scheduled_at, reserved_at, deadline
		FROM jobs WHERE id = $1
	`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inspect job %d: %w", jobID, err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var lastError *string
	if err := row.Scan(
		&j.ID, &j.Kind, &j.SiteID, &j.EquipmentID, &j.DedupKey, &j.Payload, &j.Priority, &j.Status,
		&j.AttemptsMade, &j.AttemptsMax, &lastError, &j.EnqueuedAt, &j.ScheduledAt, &j.ReservedAt, &j.Deadline,
	); err != nil {
		return nil, err
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}
