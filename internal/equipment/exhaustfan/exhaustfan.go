// Package exhaustfan implements the exhaust-fan control variant from
// spec.md §4.6: the fan runs whenever CO2 exceeds its setpoint, modulating
// speed via PID when it does. Space pressure is not read.
package exhaustfan

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "exhaust-fan"

const (
	defaultCO2PPMSetpoint = 800.0
	controllerKey         = "cooling" // speed should rise as CO2 rises above setpoint
)

var (
	co2Keys      = []string{"co2", "CO2", "co2PPM"}
	defaultGains = pid.Gains{Kp: 0.5, Ki: 0.02, Kd: 0, OutMin: 0, OutMax: 100}
)

// Control implements the exhaust-fan control function.
func Control(in equipment.Inputs) equipment.Result {
	co2, _ := equipment.FieldFloat(in.Metrics, defaultCO2PPMSetpoint, co2Keys...)

	setpoint := in.Config.Setpoint
	if setpoint == 0 {
		setpoint = defaultCO2PPMSetpoint
	}

	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(co2, setpoint, in.Dt, state)

	running := output > 0

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "fanEnable", running),
			equipment.Command(in, "fanSpeed", output),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}
