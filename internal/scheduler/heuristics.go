package scheduler

import (
	"fmt"
	"time"

	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/queue"
)

// decideEnqueue implements the tick's per-equipment decision, evaluated in
// the order named: always enqueue on staleness first, then safety, then
// deviation. A site that can't read metrics for an equipment at all still
// gets the staleness check — it just can't additionally be caught by
// safety or deviation that tick.
func decideEnqueue(cfg equipment.Config, metricsFields map[string]any, hasMetrics bool, lastProcessed, now time.Time, tickInterval time.Duration) (enqueue bool, priority int, reason string) {
	if lastProcessed.IsZero() || now.Sub(lastProcessed) > tickInterval {
		return true, queue.PriorityNormal, "last-processed exceeds tick interval"
	}

	if !hasMetrics {
		return false, 0, ""
	}

	if out, limitReason := safetyOutOfBounds(cfg, metricsFields); out {
		return true, safetyPriority, limitReason
	}

	if deviationExceeds(cfg, metricsFields) {
		return true, queue.PriorityNormal, "deviation exceeds band"
	}

	return false, 0, ""
}

// safetyOutOfBounds checks an equipment's primary process variable against
// a configurable high/low safety limit. The spec's example is a boiler
// supply temperature above 170°F; the limit and the metric key it reads
// are both overridable per equipment via Config.Extra, since the safe band
// is a property of the equipment type and installation, not of this
// scheduler.
func safetyOutOfBounds(cfg equipment.Config, fields map[string]any) (bool, string) {
	value, ok := equipment.FieldFloat(fields, 0, processVariableKeys(cfg)...)
	if !ok {
		return false, ""
	}

	high := defaultSafetyHighLimitF
	if v, ok := cfg.Extra["safetyHighLimit"].(float64); ok {
		high = v
	}
	if value > high {
		return true, fmt.Sprintf("process variable %.1f exceeds safety high limit %.1f", value, high)
	}

	if v, ok := cfg.Extra["safetyLowLimit"].(float64); ok && value < v {
		return true, fmt.Sprintf("process variable %.1f below safety low limit %.1f", value, v)
	}

	return false, ""
}

// deviationExceeds reports whether the process variable differs from the
// configured setpoint by at least the configured (or default) deadband.
// An equipment with no configured setpoint has nothing to deviate from and
// is never flagged by this check alone.
func deviationExceeds(cfg equipment.Config, fields map[string]any) bool {
	if cfg.Setpoint == 0 {
		return false
	}
	value, ok := equipment.FieldFloat(fields, 0, processVariableKeys(cfg)...)
	if !ok {
		return false
	}

	band := cfg.Deadband
	if band <= 0 {
		band = defaultDeviationBand
	}

	diff := value - cfg.Setpoint
	if diff < 0 {
		diff = -diff
	}
	return diff >= band
}

// processVariableKeys returns the metric field names to look up for the
// safety/deviation checks, preferring an equipment-specific override.
func processVariableKeys(cfg equipment.Config) []string {
	if keys, ok := cfg.Extra["safetyMetricKeys"].([]string); ok && len(keys) > 0 {
		return keys
	}
	return defaultProcessVariableKeys
}
