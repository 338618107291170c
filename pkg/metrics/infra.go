package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InfraMetrics contains all infrastructure-level metrics for the BMS core
// service.
//
// Infrastructure metrics track low-level system resources:
//   - Database connection pools (connections, queries, latency)
//   - Cache operations (hits, misses, evictions)
//   - Telemetry reads (duration, errors, staleness)
//
// All metrics follow the taxonomy:
// bms_core_infra_<subsystem>_<metric_name>_<unit>
type InfraMetrics struct {
	namespace string

	// DB subsystem - queue/config-store database connection pool metrics
	DB *DatabaseMetrics

	// Cache subsystem - state cache (Redis) metrics
	Cache *CacheMetrics

	// Telemetry subsystem - telemetry-store read metrics
	Telemetry *TelemetryMetrics
}

// NewInfraMetrics creates a new InfraMetrics instance with all subsystems initialized.
func NewInfraMetrics(namespace string) *InfraMetrics {
	return &InfraMetrics{
		namespace: namespace,
		DB:        NewDatabaseMetrics(namespace),
		Cache:     NewCacheMetrics(namespace),
		Telemetry: NewTelemetryMetrics(namespace),
	}
}

// DatabaseMetrics contains metrics for database connection pool.
//
// Tracks database health, connection usage, query performance, and errors.
// Populated by internal/postgres's pool wrapper for the priority job queue
// and config store.
type DatabaseMetrics struct {
	ConnectionsActive prometheus.Gauge   // Number of active database connections
	ConnectionsIdle   prometheus.Gauge   // Number of idle connections in pool
	ConnectionsTotal  prometheus.Counter // Total number of connections created (cumulative)

	ConnectionWaitDurationSeconds prometheus.Histogram    // Time spent waiting for a connection
	QueryDurationSeconds          *prometheus.HistogramVec // Duration of database queries

	QueriesTotal *prometheus.CounterVec // Total number of queries executed
	ErrorsTotal  *prometheus.CounterVec // Total number of database errors
}

// NewDatabaseMetrics creates database connection pool metrics.
func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	return &DatabaseMetrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "infra_db",
			Name:      "connections_active",
			Help:      "Number of active database connections currently in use",
		}),

		ConnectionsIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "infra_db",
			Name:      "connections_idle",
			Help:      "Number of idle database connections in the pool",
		}),

		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "infra_db",
			Name:      "connections_total",
			Help:      "Total number of database connections created (cumulative)",
		}),

		ConnectionWaitDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "infra_db",
			Name:      "connection_wait_duration_seconds",
			Help:      "Time spent waiting for a database connection from the pool",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		QueryDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "infra_db",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"}, // operation: SELECT|INSERT|UPDATE|DELETE
		),

		QueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_db",
				Name:      "queries_total",
				Help:      "Total number of database queries executed",
			},
			[]string{"operation", "status"}, // operation: SELECT|INSERT|UPDATE|DELETE, status: success|error
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_db",
				Name:      "errors_total",
				Help:      "Total number of database errors encountered",
			},
			[]string{"error_type"}, // error_type: connection|query|timeout|constraint
		),
	}
}

// CacheMetrics contains metrics for cache operations (Redis-backed state cache).
type CacheMetrics struct {
	HitsTotal      *prometheus.CounterVec // Total number of cache hits
	MissesTotal    *prometheus.CounterVec // Total number of cache misses
	ErrorsTotal    *prometheus.CounterVec // Total number of cache errors
	EvictionsTotal prometheus.Counter     // Total number of cache evictions
	SizeBytes      prometheus.Gauge       // Current size of cache in bytes
}

// NewCacheMetrics creates cache operation metrics.
func NewCacheMetrics(namespace string) *CacheMetrics {
	return &CacheMetrics{
		HitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits (successful cache lookups)",
			},
			[]string{"cache_type"}, // cache_type: redis|memory
		),

		MissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses (cache lookups that failed)",
			},
			[]string{"cache_type"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_cache",
				Name:      "errors_total",
				Help:      "Total number of cache errors encountered",
			},
			[]string{"cache_type", "error_type"}, // error_type: connection|timeout|serialization
		),

		EvictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_cache",
				Name:      "evictions_total",
				Help:      "Total number of cache evictions (items removed due to size/TTL)",
			},
		),

		SizeBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "infra_cache",
				Name:      "size_bytes",
				Help:      "Current size of cache in bytes",
			},
		),
	}
}

// TelemetryMetrics contains metrics for telemetry-store read operations (the
// supply temp / freezestat / status feed control evaluations read from).
type TelemetryMetrics struct {
	ReadDurationSeconds *prometheus.HistogramVec // Duration of a telemetry read
	ReadErrorsTotal     *prometheus.CounterVec   // Total telemetry read errors
	StaleReadsTotal      *prometheus.CounterVec   // Total reads that returned data older than the allowed staleness window
}

// NewTelemetryMetrics creates telemetry read metrics.
func NewTelemetryMetrics(namespace string) *TelemetryMetrics {
	return &TelemetryMetrics{
		ReadDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "infra_telemetry",
				Name:      "read_duration_seconds",
				Help:      "Duration of telemetry-store read operations in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"equipment_type", "status"}, // status: success|error
		),

		ReadErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_telemetry",
				Name:      "read_errors_total",
				Help:      "Total number of telemetry read errors encountered",
			},
			[]string{"equipment_type", "error_type"}, // error_type: timeout|not_found|internal
		),

		StaleReadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infra_telemetry",
				Name:      "stale_reads_total",
				Help:      "Total number of telemetry reads older than the allowed staleness window",
			},
			[]string{"equipment_type"},
		),
	}
}

// RecordRead records one telemetry read's outcome and duration. Error
// classification is done on the error text rather than a sentinel type to
// avoid this package depending on internal/resilience.
func (m *TelemetryMetrics) RecordRead(equipmentType string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errorType := "internal"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			errorType = "timeout"
		case strings.Contains(err.Error(), "not found"):
			errorType = "not_found"
		}
		m.ReadErrorsTotal.WithLabelValues(equipmentType, errorType).Inc()
	}
	m.ReadDurationSeconds.WithLabelValues(equipmentType, status).Observe(duration.Seconds())
}

// RecordStaleRead increments the stale-read counter for an equipment type.
func (m *TelemetryMetrics) RecordStaleRead(equipmentType string) {
	m.StaleReadsTotal.WithLabelValues(equipmentType).Inc()
}
