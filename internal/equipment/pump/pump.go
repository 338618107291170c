// Package pump implements the lead-lag pump control variant from
// spec.md §4.6: the lead member of a redundant group runs its own PID
// loop on system pressure or flow, the lag member(s) are commanded off.
package pump

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "pump"

const defaultPressureF = 0.0
const controllerKey = "primary"

var (
	pressureKeys = []string{"pressure", "Pressure", "systemPressure", "flow", "Flow"}
	defaultGains = pid.Gains{Kp: 2, Ki: 0.2, Kd: 0, OutMin: 0, OutMax: 100}
)

// Control runs the pump's own PID loop when it is the lead of its group
// (or not grouped at all) and commands it off when it is lagging.
func Control(in equipment.Inputs) equipment.Result {
	if in.InGroup && !in.GroupDecision.IsLead {
		return equipment.Result{
			Commands: []commandwriter.Command{
				equipment.Command(in, "speed", 0.0),
				equipment.Command(in, "pumpEnable", false),
			},
			NewPIDState: equipment.PIDState{controllerKey: pid.State{}},
			Events:      in.GroupDecision.Events,
		}
	}

	pressure, _ := equipment.FieldFloat(in.Metrics, defaultPressureF, pressureKeys...)
	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(pressure, in.Config.Setpoint, in.Dt, state)

	run := !in.InGroup || in.GroupDecision.ShouldRun

	speed := output
	if !run {
		speed = 0
	}

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "speed", speed),
			equipment.Command(in, "pumpEnable", run),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
		Events:      in.GroupDecision.Events,
	}
}
