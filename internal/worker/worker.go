// Package worker implements the bounded concurrent executor (spec.md §4.9)
// that drains the priority job queue and carries out each job's effect:
// run a control evaluation, apply a user command, or trip an emergency
// shutdown. Adapted directly from the teacher's AsyncWebhookProcessor
// (internal/processing): a fixed worker count, a buffered job channel, a
// poller feeding it from the queue instead of an inbound HTTP handler, and
// the same graceful-stop-with-drain-timeout shape.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/ctlerr"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/leadlag"
	"github.com/automatacontrols/bms-core/internal/queue"
	"github.com/automatacontrols/bms-core/internal/statecache"
	"github.com/automatacontrols/bms-core/internal/telemetry"
	"github.com/automatacontrols/bms-core/pkg/metrics"
)

const (
	// DefaultWorkers mirrors spec.md §4.9's "5 per site for control jobs"
	// default; the orchestrator may size this per deployment.
	DefaultWorkers = 5
	// DefaultPollInterval is how long the poller sleeps after an empty
	// reserve before asking the queue again.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultJobTimeout is the per-call control-function deadline spec.md
	// §4.9 step 4 names; exceeding it fails the job rather than blocking
	// forever, since a pure control function that overruns it is a bug.
	DefaultJobTimeout = 30 * time.Second
	// defaultQueueMonitorInterval mirrors the teacher's queueMonitor cadence.
	defaultQueueMonitorInterval = 5 * time.Second
)

// ConfigProvider resolves per-equipment control configuration. In
// production this is internal/configstore's client; tests supply a stub.
type ConfigProvider interface {
	EquipmentConfig(ctx context.Context, siteID, equipmentID string) (equipment.Config, error)
}

// Config configures a Pool.
type Config struct {
	Workers       int
	QueueSize     int // buffered job channel capacity; defaults to 2x Workers
	PollInterval  time.Duration
	JobTimeout    time.Duration
	StopTimeout   time.Duration
	Logger        *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Pool is the worker pool. One Pool is constructed by the orchestrator and
// shared by every site's scheduler (the producer, via the queue) — there is
// no package-level singleton.
type Pool struct {
	cfg Config

	queue      *queue.Queue
	registry   *equipment.Registry
	telemetry  *telemetry.Client
	commands   *commandwriter.Client
	cache      *statecache.Cache
	leadlag    *leadlag.Coordinator
	configs    ConfigProvider
	metrics    *metrics.BusinessMetrics

	jobQueue chan *queue.Job
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// Dependencies bundles the collaborators a Pool drives each job through.
type Dependencies struct {
	Queue      *queue.Queue
	Registry   *equipment.Registry
	Telemetry  *telemetry.Client
	Commands   *commandwriter.Client
	Cache      *statecache.Cache
	LeadLag    *leadlag.Coordinator
	Configs    ConfigProvider
	Metrics    *metrics.BusinessMetrics
}

// New creates a Pool. Metrics may be nil in tests that don't assert on it.
func New(cfg Config, deps Dependencies) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:       cfg,
		queue:     deps.Queue,
		registry:  deps.Registry,
		telemetry: deps.Telemetry,
		commands:  deps.Commands,
		cache:     deps.Cache,
		leadlag:   deps.LeadLag,
		configs:   deps.Configs,
		metrics:   deps.Metrics,
		jobQueue:  make(chan *queue.Job, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the poller, the worker goroutines, and the queue-depth
// monitor. Safe to call once; a second call returns an error.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("worker pool already running")
	}
	p.running = true

	p.wg.Add(1)
	go p.poll(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}

	p.wg.Add(1)
	go p.monitorQueueDepth(ctx)

	p.cfg.Logger.Info("worker pool started", "workers", p.cfg.Workers)
	return nil
}

// Stop signals every goroutine to exit and waits up to StopTimeout for the
// current in-flight jobs to finish.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool not running")
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cfg.Logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(p.cfg.StopTimeout):
		p.cfg.Logger.Warn("worker pool stop timeout, jobs may have been abandoned")
		return fmt.Errorf("worker pool stop timeout after %s", p.cfg.StopTimeout)
	}
}

// poll repeatedly reserves the next ready job from the queue and hands it to
// a worker. Generalizes the teacher's inbound SubmitJob path: here the
// "submitter" is the queue itself rather than an HTTP handler.
func (p *Pool) poll(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			job, err := p.queue.Reserve(ctx)
			if err != nil {
				p.cfg.Logger.Error("queue reserve failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			if p.metrics != nil {
				p.metrics.RecordJobDequeued(job.SiteID, time.Since(job.EnqueuedAt).Seconds())
			}
			select {
			case p.jobQueue <- job:
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// work drains jobQueue and runs each job to completion.
func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.runJob(ctx, job, id)
		}
	}
}

// runJob dispatches one job by kind and reports its outcome back to the
// queue (spec.md §4.9 steps 4–6).
func (p *Pool) runJob(ctx context.Context, job *queue.Job, workerID int) {
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	var err error
	switch job.Kind {
	case queue.KindProcessEquipment:
		err = p.processEquipment(jobCtx, job)
	case queue.KindApplyUserCommand:
		err = p.applyUserCommand(jobCtx, job)
	case queue.KindEmergencyShutdown:
		err = p.emergencyShutdown(jobCtx, job)
	default:
		err = ctlerr.New(ctlerr.Permanent, fmt.Errorf("unknown job kind %q", job.Kind))
	}

	if err != nil {
		p.cfg.Logger.Warn("job failed",
			"worker_id", workerID, "job_id", job.ID, "kind", job.Kind,
			"equipment_id", job.EquipmentID, "error", err)
		if ferr := p.queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
			p.cfg.Logger.Error("queue fail failed", "job_id", job.ID, "error", ferr)
		}
		if p.metrics != nil {
			p.metrics.RecordJobCompleted(job.SiteID, "failed")
		}
		return
	}

	if cerr := p.queue.Complete(ctx, job.ID); cerr != nil {
		p.cfg.Logger.Error("queue complete failed", "job_id", job.ID, "error", cerr)
	}
	if p.metrics != nil {
		p.metrics.RecordJobCompleted(job.SiteID, "done")
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind, ok := ctlerr.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}

// monitorQueueDepth periodically reports the true queue depth per site,
// mirroring the teacher's queueMonitor ticker.
func (p *Pool) monitorQueueDepth(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(defaultQueueMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if p.metrics == nil {
				continue
			}
			depths, err := p.queue.DepthBySite(ctx)
			if err != nil {
				p.cfg.Logger.Warn("queue depth query failed", "error", err)
				continue
			}
			for siteID, depth := range depths {
				p.metrics.SetQueueDepth(siteID, depth)
			}
		}
	}
}

// Stats is a snapshot of the pool's current load, for the orchestrator's
// operational-surface endpoint.
type Stats struct {
	Running      bool
	Workers      int
	QueueLen     int
	QueueCap     int
}

// Stats returns a point-in-time snapshot.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Running:  p.running,
		Workers:  p.cfg.Workers,
		QueueLen: len(p.jobQueue),
		QueueCap: cap(p.jobQueue),
	}
}
