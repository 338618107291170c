package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/ctlerr"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/leadlag"
	"github.com/automatacontrols/bms-core/internal/pid"
	"github.com/automatacontrols/bms-core/internal/queue"
	"github.com/automatacontrols/bms-core/internal/telemetry"
)

// Reserved statecache field names used to persist PID bookkeeping alongside
// the ordinary command fields the UI reads. Prefixed with an underscore so
// they never collide with a real command/metric name.
const (
	pidStateField = "_pidState"
	lastEvalField = "_lastEvalAt"
)

// These key lists name the telemetry fields the lead-lag coordinator's
// MetricsView is built from — the supply-temperature and freezestat/status
// sensors spec.md §4.7 bases its health check on.
var (
	supplyTempKeys = []string{"supply", "Supply", "SupplyTemp", "supplyTemp", "SAT"}
	freezestatKeys = []string{"freezestat", "Freezestat", "FreezeStat"}
	statusKeys     = []string{"status", "Status", "unitStatus"}
)

// processEquipment implements spec.md §4.9 steps 2–6 for a process-equipment
// job: resolve the control function, gather inputs, invoke it, apply the
// result, and persist PID/group bookkeeping.
func (p *Pool) processEquipment(ctx context.Context, job *queue.Job) (err error) {
	start := time.Now()
	equipmentType := "unknown"
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordControlEvaluation(equipmentType, outcomeLabel(err), time.Since(start).Seconds())
		}
	}()

	cfg, err := p.configs.EquipmentConfig(ctx, job.SiteID, job.EquipmentID)
	if err != nil {
		return ctlerr.New(ctlerr.Transient, fmt.Errorf("load equipment config: %w", err))
	}
	equipmentType = cfg.EquipmentType

	fn, ok := p.registry.Resolve(job.SiteID, cfg.EquipmentType)
	if !ok {
		return ctlerr.New(ctlerr.Permanent, fmt.Errorf("no control function registered for equipment type %q", cfg.EquipmentType))
	}

	metricsFields := map[string]any{}
	sample, terr := p.telemetry.ReadLatest(ctx, job.SiteID, job.EquipmentID)
	switch {
	case terr == nil:
		metricsFields = sample.Fields
	case errors.Is(terr, telemetry.ErrNotFound):
		p.cfg.Logger.Warn("no telemetry sample available, proceeding with documented defaults",
			"site_id", job.SiteID, "equipment_id", job.EquipmentID)
	default:
		return ctlerr.New(ctlerr.Transient, fmt.Errorf("read telemetry: %w", terr))
	}

	now := time.Now().UTC()
	priorState, dt := p.loadPIDBookkeeping(ctx, job.EquipmentID, now)

	var decision leadlag.Decision
	if cfg.GroupID != "" {
		view := leadlag.MetricsView{Missing: terr != nil && !errors.Is(terr, telemetry.ErrNotFound)}
		if terr == nil {
			supply, _ := equipment.FieldFloat(metricsFields, 0, supplyTempKeys...)
			view.SupplyTempF = supply
			view.Freezestat = equipment.FieldBool(metricsFields, freezestatKeys...)
			view.Status = equipment.FieldString(metricsFields, statusKeys...)
		} else {
			view.Missing = true
		}

		decision, err = p.leadlag.Decide(ctx, leadlag.NewGroupKey(job.SiteID, cfg.GroupID), job.EquipmentID, view, now)
		if err != nil {
			return ctlerr.New(ctlerr.Transient, fmt.Errorf("lead-lag decide: %w", err))
		}
	}

	in := equipment.Inputs{
		Metrics:       metricsFields,
		Config:        cfg,
		PIDState:      priorState,
		GroupDecision: decision,
		InGroup:       cfg.GroupID != "",
		Now:           now,
		Dt:            dt,
	}

	result, err := p.invokeControlFunc(ctx, fn, in)
	if err != nil {
		return err
	}

	return p.applyResult(ctx, job.EquipmentID, result, now)
}

// invokeControlFunc runs fn with the per-call timeout spec.md §4.9 step 4
// names. Control functions are pure and short; a function that does not
// return before the deadline is treated as a bug and fails the job.
func (p *Pool) invokeControlFunc(ctx context.Context, fn equipment.ControlFunc, in equipment.Inputs) (equipment.Result, error) {
	type outcome struct {
		result equipment.Result
	}
	done := make(chan outcome, 1)
	go func() {
		done <- outcome{result: fn(in)}
	}()

	select {
	case o := <-done:
		return o.result, nil
	case <-ctx.Done():
		return equipment.Result{}, ctlerr.New(ctlerr.Permanent, fmt.Errorf("control function for %q exceeded its evaluation deadline", in.Config.EquipmentType))
	}
}

// applyResult writes every returned command, persists the new PID state,
// and updates the live state cache — spec.md §4.9 step 5.
func (p *Pool) applyResult(ctx context.Context, equipmentID string, result equipment.Result, now time.Time) error {
	partialState := make(map[string]any, len(result.Commands)+2)

	var firstErr error
	for _, cmd := range result.Commands {
		if _, err := p.commands.WriteCommand(ctx, cmd); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		partialState[cmd.CommandType] = cmd.Value
	}

	partialState[pidStateField] = encodePIDState(result.NewPIDState)
	partialState[lastEvalField] = now.Format(time.RFC3339Nano)

	if err := p.cache.SetState(ctx, equipmentID, partialState, "control-engine", ""); err != nil {
		p.cfg.Logger.Error("state cache update failed", "equipment_id", equipmentID, "error", err)
	}

	if firstErr != nil {
		return ctlerr.New(ctlerr.Partial, fmt.Errorf("one or more commands for %s failed: %w", equipmentID, firstErr))
	}
	return nil
}

// loadPIDBookkeeping reads the previously persisted PID state and
// last-evaluation timestamp for an equipment, returning a zero Dt on the
// first-ever evaluation (no prior state recorded).
func (p *Pool) loadPIDBookkeeping(ctx context.Context, equipmentID string, now time.Time) (equipment.PIDState, float64) {
	state, err := p.cache.GetState(ctx, equipmentID)
	if err != nil {
		return equipment.PIDState{}, 0
	}

	prior := decodePIDState(state.Fields[pidStateField])

	lastEvalRaw, ok := state.Fields[lastEvalField].(string)
	if !ok {
		return prior, 0
	}
	lastEval, err := time.Parse(time.RFC3339Nano, lastEvalRaw)
	if err != nil {
		return prior, 0
	}
	return prior, now.Sub(lastEval).Seconds()
}

// UserCommandPayload is the decoded payload of an apply-user-command job.
type UserCommandPayload struct {
	CommandType string `json:"commandType"`
	Value       any    `json:"value"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
}

// applyUserCommand writes a single operator-issued command and records it
// in the state cache under the issuing user's identity.
func (p *Pool) applyUserCommand(ctx context.Context, job *queue.Job) error {
	var payload UserCommandPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return ctlerr.New(ctlerr.Permanent, fmt.Errorf("decode user command payload: %w", err))
	}

	cmd := commandwriter.Command{
		EquipmentID: job.EquipmentID,
		CommandType: payload.CommandType,
		Source:      "user",
		UserID:      payload.UserID,
		UserName:    payload.UserName,
		Value:       payload.Value,
		Time:        time.Now().UTC(),
	}

	if _, err := p.commands.WriteCommand(ctx, cmd); err != nil {
		return err
	}

	if err := p.cache.SetState(ctx, job.EquipmentID, map[string]any{payload.CommandType: payload.Value}, payload.UserID, payload.UserName); err != nil {
		p.cfg.Logger.Error("state cache update failed", "equipment_id", job.EquipmentID, "error", err)
	}
	return nil
}

// EmergencyShutdownPayload is the decoded payload of an emergency-shutdown
// job: the safety condition that triggered it.
type EmergencyShutdownPayload struct {
	Reason string `json:"reason"`
}

// emergencyShutdown writes the EMERGENCY_SHUTDOWN command directly,
// bypassing the normal control-evaluation path entirely — spec.md's GLOSSARY
// entry for Safety names this as the one command kind that bypasses dedup
// priority resolution, which C8's Enqueue already honors by always
// assigning it PriorityEmergency.
func (p *Pool) emergencyShutdown(ctx context.Context, job *queue.Job) error {
	var payload EmergencyShutdownPayload
	_ = json.Unmarshal(job.Payload, &payload) // payload is optional; absence is not an error

	cmd := commandwriter.Command{
		EquipmentID: job.EquipmentID,
		CommandType: "EMERGENCY_SHUTDOWN",
		Source:      "safety-interlock",
		Value:       true,
		Status:      "tripped",
		Details:     payload.Reason,
		Time:        time.Now().UTC(),
	}

	if _, err := p.commands.WriteCommand(ctx, cmd); err != nil {
		return err
	}

	fields := map[string]any{
		"EMERGENCY_SHUTDOWN": true,
		"emergencyReason":    payload.Reason,
	}
	if err := p.cache.SetState(ctx, job.EquipmentID, fields, "safety-interlock", ""); err != nil {
		p.cfg.Logger.Error("state cache update failed", "equipment_id", job.EquipmentID, "error", err)
	}
	return nil
}

// encodePIDState flattens PID controller state into plain JSON-able values
// for the state cache's map[string]any Fields.
func encodePIDState(state equipment.PIDState) map[string]any {
	out := make(map[string]any, len(state))
	for key, s := range state {
		out[key] = map[string]any{
			"integral":      s.Integral,
			"previousError": s.PreviousError,
			"lastOutput":    s.LastOutput,
		}
	}
	return out
}

// decodePIDState reverses encodePIDState, tolerating a missing or
// malformed value (first-ever evaluation, or a hand-edited cache entry) by
// returning an empty PIDState.
func decodePIDState(raw any) equipment.PIDState {
	state := equipment.PIDState{}
	byKey, ok := raw.(map[string]any)
	if !ok {
		return state
	}
	for key, v := range byKey {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		state[key] = pid.State{
			Integral:      floatField(entry, "integral"),
			PreviousError: floatField(entry, "previousError"),
			LastOutput:    floatField(entry, "lastOutput"),
		}
	}
	return state
}

func floatField(m map[string]any, key string) float64 {
	v, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return v
}
