// Package generic implements the fallback control variant from
// spec.md §4.6: a single PID loop on a configured metric field driving a
// single "output" command, for equipment types without a dedicated
// sub-package.
package generic

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "generic"

const controllerKey = "primary"

var (
	valueKeys    = []string{"value", "Value", "measurement"}
	defaultGains = pid.Gains{Kp: 1, Ki: 0.1, Kd: 0, OutMin: 0, OutMax: 100}
)

// Control implements the generic fallback control function.
func Control(in equipment.Inputs) equipment.Result {
	value, _ := equipment.FieldFloat(in.Metrics, in.Config.Setpoint, valueKeys...)

	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(value, in.Config.Setpoint, in.Dt, state)

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "output", output),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}
