// Package metrics provides centralized metrics management for the BMS core
// service.
//
// This package implements a unified taxonomy for Prometheus metrics:
//   - Business metrics: queue throughput, control evaluations, lead-lag
//     transitions, PID saturation, scheduler ticks, command writes
//   - Technical metrics: HTTP surface (health/metrics endpoints)
//   - Infrastructure metrics: database pool, cache, telemetry reads
//
// All metrics follow the naming convention:
// bms_core_<category>_<subsystem>_<metric_name>_<unit>
//
// Example:
//
//	registry := metrics.NewMetricsRegistry("bms_core")
//	registry.Business().JobsEnqueuedTotal.WithLabelValues("site-1").Inc()
//	registry.Infra().DB.ConnectionsActive.Set(42)
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	// CategoryBusiness represents business-level metrics (queue, control
	// evaluations, lead-lag, scheduler).
	CategoryBusiness MetricCategory = "business"

	// CategoryTechnical represents technical metrics (HTTP surface).
	CategoryTechnical MetricCategory = "technical"

	// CategoryInfra represents infrastructure metrics (database, cache, telemetry).
	CategoryInfra MetricCategory = "infra"
)

// MetricsRegistry is the central registry for all Prometheus metrics.
// Provides organized access to metrics by category (Business, Technical, Infra).
//
// Exactly one MetricsRegistry is constructed by the orchestrator at startup
// and threaded down to every component that records metrics; this package
// holds no package-level registry instance.
//
// Thread-safe: all Prometheus metrics are thread-safe by design, and the
// lazy per-category initialization below uses per-instance sync.Once values.
type MetricsRegistry struct {
	namespace string

	business  *BusinessMetrics
	technical *TechnicalMetrics
	infra     *InfraMetrics

	businessOnce  sync.Once
	technicalOnce sync.Once
	infraOnce     sync.Once
}

// NewMetricsRegistry creates a new MetricsRegistry with the given namespace.
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "bms_core"
	}

	return &MetricsRegistry{
		namespace: namespace,
	}
}

// Business returns the Business metrics manager, initialized on first access.
func (r *MetricsRegistry) Business() *BusinessMetrics {
	r.businessOnce.Do(func() {
		r.business = NewBusinessMetrics(r.namespace)
	})
	return r.business
}

// Technical returns the Technical metrics manager, initialized on first access.
func (r *MetricsRegistry) Technical() *TechnicalMetrics {
	r.technicalOnce.Do(func() {
		r.technical = NewTechnicalMetrics(r.namespace)
	})
	return r.technical
}

// Infra returns the Infrastructure metrics manager, initialized on first access.
func (r *MetricsRegistry) Infra() *InfraMetrics {
	r.infraOnce.Do(func() {
		r.infra = NewInfraMetrics(r.namespace)
	})
	return r.infra
}

// Namespace returns the configured namespace for this registry.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}
