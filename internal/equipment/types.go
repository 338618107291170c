// Package equipment holds the typed control-function registry (spec.md
// §4.6) and the shared input/output/lookup types every equipment-type
// sub-package builds on. Each sub-package (boiler, faircoil, pump,
// airhandler, doas, geothermal, steambundle, exhaustfan, generic) exports
// one or more pure ControlFunc values; nothing here does I/O.
package equipment

import (
	"time"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/leadlag"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// Config is the per-equipment configuration document read from the config
// store (internal/configstore). Fields absent from the document keep their
// Go zero value; each control function applies its own documented default
// when a zero value isn't a meaningful setting (e.g. a zero Setpoint).
type Config struct {
	EquipmentID   string
	EquipmentType string
	SiteID        string
	LocationID    string
	Setpoint      float64
	Gains         map[string]pid.Gains // keyed by controller-key, e.g. "heating", "cooling"
	Deadband      float64
	GroupID       string // non-empty if this equipment belongs to a lead-lag group
	Extra         map[string]any // type-specific tuning: OAR band overrides, damper bands, etc.
}

// GainsFor returns the configured Gains for a controller key, or the given
// fallback if none is configured.
func (c Config) GainsFor(key string, fallback pid.Gains) pid.Gains {
	if g, ok := c.Gains[key]; ok {
		return g
	}
	return fallback
}

// PIDState carries every named PID controller's state for one equipment.
// Fan-coils need both a "heating" and a "cooling" controller; most other
// types need only one, conventionally keyed "primary".
type PIDState map[string]pid.State

// Inputs is everything a control function needs to make one decision.
// GroupDecision is populated by the caller (the worker, C9) from a prior
// call to leadlag.Coordinator.Decide — group membership and health
// evaluation are I/O-bearing and stay outside this pure layer.
type Inputs struct {
	Metrics       map[string]any
	Config        Config
	PIDState      PIDState
	GroupDecision leadlag.Decision
	InGroup       bool
	Now           time.Time
	// Dt is the elapsed time since this equipment's last control
	// evaluation, in seconds (0 on the first evaluation). The worker
	// derives it from the scheduler's tick interval or the PID state's
	// own bookkeeping; it is passed in rather than computed here to keep
	// this layer free of any notion of "previous now".
	Dt float64
}

// Result is what a control function produces: the commands for C3 to
// apply, the PID state to persist, and any lead-lag events to record
// (normally a pass-through of Inputs.GroupDecision.Events for the types
// that consult C7).
type Result struct {
	Commands    []commandwriter.Command
	NewPIDState PIDState
	Events      []leadlag.Event
}

// ControlFunc is the pure, deterministic signature every equipment type
// implements: same Inputs always produce the same Result.
type ControlFunc func(in Inputs) Result

// Command is a small helper constructor so sub-packages don't repeat the
// EquipmentID/LocationID/Source/Time boilerplate on every emitted command.
func Command(in Inputs, commandType string, value any) commandwriter.Command {
	return commandwriter.Command{
		EquipmentID: in.Config.EquipmentID,
		LocationID:  in.Config.LocationID,
		CommandType: commandType,
		Source:      "control-engine",
		Value:       value,
		Time:        in.Now,
	}
}
