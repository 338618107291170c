package metrics

// TechnicalMetrics aggregates technical-level metrics for the BMS core
// service: the HTTP surface the orchestrator exposes for health checks and
// /metrics scraping itself.
//
// This is an aggregator struct that groups existing metrics under the
// technical category; HTTPMetrics itself lives in prometheus.go.
type TechnicalMetrics struct {
	namespace string

	// HTTP subsystem - existing metrics from prometheus.go
	HTTP *HTTPMetrics
}

// NewTechnicalMetrics creates a new TechnicalMetrics aggregator.
func NewTechnicalMetrics(namespace string) *TechnicalMetrics {
	return &TechnicalMetrics{
		namespace: namespace,
		HTTP:      NewHTTPMetricsWithNamespace(namespace, "technical_http"),
	}
}
