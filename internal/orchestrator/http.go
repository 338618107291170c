package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// mux builds the orchestrator's own control-plane HTTP surface: liveness,
// readiness, Prometheus scraping, and the JSON operational-surface
// endpoint. This is not the excluded operator dashboard — it has no UI and
// exists purely for the process supervisor and monitoring stack.
func (o *Orchestrator) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", o.handleHealthz)
	mux.HandleFunc("/readyz", o.handleReadyz)
	mux.HandleFunc("/status", o.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// handleHealthz reports liveness: spec.md §4.11's "fails if any scheduler
// has not ticked in ≥ 3× its interval"; it also fails while any site is
// degraded after repeated tick failures. A process with zero configured
// sites is trivially live.
func (o *Orchestrator) handleHealthz(w http.ResponseWriter, r *http.Request) {
	for _, siteID := range o.siteOrder {
		if !o.schedulers[siteID].Live() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy: site " + siteID + " has not ticked recently\n"))
			return
		}
		if o.schedulers[siteID].Stats().Degraded {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy: site " + siteID + " is degraded after repeated tick failures\n"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleReadyz reports readiness: ready once every site has completed at
// least one tick. Whether any tick succeeded is not checked — a site whose
// ticks have all failed still counts as ready; repeated failures show up as
// "degraded" in /status and fail /healthz instead.
func (o *Orchestrator) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, siteID := range o.siteOrder {
		if !o.schedulers[siteID].Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready: site " + siteID + " has not completed a tick\n"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

// handleStatus serves the JSON operational surface.
func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := o.Status(r.Context())
	if err != nil {
		o.logger.Error("status handler failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		o.logger.Error("status handler encode failed", "error", err)
	}
}
