package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics contains all business-level metrics for the BMS core
// service: queue throughput, control evaluations, lead-lag transitions,
// PID saturation, scheduler ticks, and command writes.
//
// All metrics follow the taxonomy:
// bms_core_business_<subsystem>_<metric_name>_<unit>
//
// Example:
//
//	bm := NewBusinessMetrics("bms_core")
//	bm.JobsEnqueuedTotal.WithLabelValues("site-1").Inc()
//	bm.ControlEvaluationDurationSeconds.WithLabelValues("boiler").Observe(0.04)
type BusinessMetrics struct {
	namespace string

	// Queue subsystem - priority job queue throughput
	JobsEnqueuedTotal   *prometheus.CounterVec   // Total jobs enqueued, by site
	JobsDequeuedTotal   *prometheus.CounterVec   // Total jobs reserved by a worker, by site
	JobsCompletedTotal  *prometheus.CounterVec   // Total jobs completed, by site and outcome
	QueueDepth          *prometheus.GaugeVec     // Current pending job count, by site
	JobWaitDurationSeconds *prometheus.HistogramVec // Time from enqueue to reservation

	// Worker subsystem - control evaluation execution
	ActiveWorkers                    prometheus.Gauge        // Number of workers currently executing a job
	ControlEvaluationsTotal          *prometheus.CounterVec  // Total control evaluations, by equipment type and outcome
	ControlEvaluationDurationSeconds *prometheus.HistogramVec // Duration of a single control evaluation

	// PID subsystem - controller saturation
	PIDSaturationEventsTotal *prometheus.CounterVec // Total times a PID output clamped at a bound, by equipment and bound

	// LeadLag subsystem - redundant equipment group transitions
	LeadLagFailoverTotal *prometheus.CounterVec // Total failover promotions, by site and group
	LeadLagRotationTotal *prometheus.CounterVec // Total scheduled rotations, by site and group

	// Scheduler subsystem - per-site tick execution
	SchedulerTicksTotal       *prometheus.CounterVec   // Total scheduler ticks, by site and outcome
	SchedulerTickDurationSeconds *prometheus.HistogramVec // Duration of a scheduler tick (fan-out to enqueue)

	// CommandWriter subsystem - dual-sink command delivery
	CommandWritesTotal          *prometheus.CounterVec   // Total command writes, by sink and outcome
	CommandWriteDurationSeconds *prometheus.HistogramVec // Duration of a command write to a single sink
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return &BusinessMetrics{
		namespace: namespace,

		JobsEnqueuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_queue",
				Name:      "jobs_enqueued_total",
				Help:      "Total number of control-evaluation jobs enqueued",
			},
			[]string{"site_id"},
		),

		JobsDequeuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_queue",
				Name:      "jobs_dequeued_total",
				Help:      "Total number of jobs reserved by a worker",
			},
			[]string{"site_id"},
		),

		JobsCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_queue",
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs completed",
			},
			[]string{"site_id", "outcome"}, // outcome: done|failed
		),

		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "business_queue",
				Name:      "depth",
				Help:      "Current number of pending jobs in the queue",
			},
			[]string{"site_id"},
		),

		JobWaitDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_queue",
				Name:      "job_wait_duration_seconds",
				Help:      "Time from job enqueue to worker reservation",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"site_id"},
		),

		ActiveWorkers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "business_worker",
				Name:      "active_workers",
				Help:      "Number of workers currently executing a control evaluation",
			},
		),

		ControlEvaluationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_worker",
				Name:      "control_evaluations_total",
				Help:      "Total number of control evaluations executed",
			},
			[]string{"equipment_type", "outcome"}, // outcome: success|transient|permanent|safety|partial|error
		),

		ControlEvaluationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_worker",
				Name:      "control_evaluation_duration_seconds",
				Help:      "Duration of a single control evaluation (PID compute + command write)",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"equipment_type"},
		),

		PIDSaturationEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_pid",
				Name:      "saturation_events_total",
				Help:      "Total number of PID output clamp events at a configured bound",
			},
			[]string{"equipment_id", "bound"}, // bound: high|low
		),

		LeadLagFailoverTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_leadlag",
				Name:      "failover_total",
				Help:      "Total number of lead-lag failover promotions",
			},
			[]string{"site_id", "group_id"},
		),

		LeadLagRotationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_leadlag",
				Name:      "rotation_total",
				Help:      "Total number of scheduled lead-lag rotations",
			},
			[]string{"site_id", "group_id"},
		),

		SchedulerTicksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_scheduler",
				Name:      "ticks_total",
				Help:      "Total number of per-site scheduler ticks",
			},
			[]string{"site_id", "outcome"}, // outcome: success|skipped_overlap|failure
		),

		SchedulerTickDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_scheduler",
				Name:      "tick_duration_seconds",
				Help:      "Duration of a scheduler tick's enqueue fan-out",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"site_id"},
		),

		CommandWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_command",
				Name:      "writes_total",
				Help:      "Total number of command writes to a sink",
			},
			[]string{"sink", "outcome"}, // outcome: success|failure
		),

		CommandWriteDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_command",
				Name:      "write_duration_seconds",
				Help:      "Duration of a command write to a single sink",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
			},
			[]string{"sink"},
		),
	}
}

// RecordJobEnqueued records a job being added to the queue for a site.
func (m *BusinessMetrics) RecordJobEnqueued(siteID string) {
	m.JobsEnqueuedTotal.WithLabelValues(siteID).Inc()
}

// RecordJobDequeued records a worker reserving a job.
func (m *BusinessMetrics) RecordJobDequeued(siteID string, waitSeconds float64) {
	m.JobsDequeuedTotal.WithLabelValues(siteID).Inc()
	m.JobWaitDurationSeconds.WithLabelValues(siteID).Observe(waitSeconds)
}

// RecordJobCompleted records a job reaching a terminal outcome.
func (m *BusinessMetrics) RecordJobCompleted(siteID, outcome string) {
	m.JobsCompletedTotal.WithLabelValues(siteID, outcome).Inc()
}

// SetQueueDepth sets the current pending-job gauge for a site.
func (m *BusinessMetrics) SetQueueDepth(siteID string, depth int) {
	m.QueueDepth.WithLabelValues(siteID).Set(float64(depth))
}

// RecordControlEvaluation records the outcome and duration of a control evaluation.
func (m *BusinessMetrics) RecordControlEvaluation(equipmentType, outcome string, duration float64) {
	m.ControlEvaluationsTotal.WithLabelValues(equipmentType, outcome).Inc()
	m.ControlEvaluationDurationSeconds.WithLabelValues(equipmentType).Observe(duration)
}

// RecordPIDSaturation records a PID output clamp event.
func (m *BusinessMetrics) RecordPIDSaturation(equipmentID, bound string) {
	m.PIDSaturationEventsTotal.WithLabelValues(equipmentID, bound).Inc()
}

// RecordLeadLagFailover records a lead-lag failover promotion.
func (m *BusinessMetrics) RecordLeadLagFailover(siteID, groupID string) {
	m.LeadLagFailoverTotal.WithLabelValues(siteID, groupID).Inc()
}

// RecordLeadLagRotation records a scheduled lead-lag rotation.
func (m *BusinessMetrics) RecordLeadLagRotation(siteID, groupID string) {
	m.LeadLagRotationTotal.WithLabelValues(siteID, groupID).Inc()
}

// RecordSchedulerTick records a scheduler tick's outcome and duration.
func (m *BusinessMetrics) RecordSchedulerTick(siteID, outcome string, duration float64) {
	m.SchedulerTicksTotal.WithLabelValues(siteID, outcome).Inc()
	m.SchedulerTickDurationSeconds.WithLabelValues(siteID).Observe(duration)
}

// RecordCommandWrite records the outcome and duration of a command write to a sink.
func (m *BusinessMetrics) RecordCommandWrite(sink, outcome string, duration float64) {
	m.CommandWritesTotal.WithLabelValues(sink, outcome).Inc()
	m.CommandWriteDurationSeconds.WithLabelValues(sink).Observe(duration)
}
