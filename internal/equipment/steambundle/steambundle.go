// Package steambundle implements the steam-to-hot-water heat exchanger
// control variant from spec.md §4.6: a PID loop drives a steam control
// valve to hold the secondary (hot-water) supply temperature at setpoint,
// with a high-limit safety trip like the boiler variants' (at its own
// 180°F limit rather than the boilers' 170°F).
package steambundle

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "steam-bundle"

const (
	defaultSupplySetpointF = 140.0
	// SafetyHighLimitF is the supply temperature above which the steam valve
	// is forced closed, the same kind of trip as the boiler variants'.
	SafetyHighLimitF = 180.0
	controllerKey    = "primary"
)

var (
	supplyKeys   = []string{"supply", "Supply", "SupplyTemp", "SecondarySupplyTemp"}
	defaultGains = pid.Gains{Kp: 0.6, Ki: 0.05, Kd: 0.02, OutMin: 0, OutMax: 100}
)

// Control implements the steam-bundle control function.
func Control(in equipment.Inputs) equipment.Result {
	supply, _ := equipment.FieldFloat(in.Metrics, defaultSupplySetpointF, supplyKeys...)

	setpoint := in.Config.Setpoint
	if setpoint == 0 {
		setpoint = defaultSupplySetpointF
	}

	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(supply, setpoint, in.Dt, state)

	tripped := supply > SafetyHighLimitF

	valvePosition := output
	if tripped {
		valvePosition = 0
	}

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "steamValvePosition", valvePosition),
			equipment.Command(in, "safetyTripped", tripped),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}
