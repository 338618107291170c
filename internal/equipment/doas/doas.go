// Package doas implements the dedicated-outdoor-air-system control
// variant from spec.md §4.6: a PID loop tempers ventilation supply air to
// a fixed setpoint, and an energy-recovery wheel runs whenever outdoor
// air is far enough from the tempering setpoint to be worth recovering
// energy from.
package doas

import (
	"math"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "doas"

const (
	defaultSupplySetpointF = 65.0
	recoveryThresholdF     = 10.0
	controllerKey          = "primary"
)

var (
	satKeys      = []string{"sat", "SAT", "supplyAirTemp", "SupplyAirTemp"}
	oatKeys      = []string{"oat", "OAT", "outdoorAirTemp", "OutdoorAirTemp"}
	defaultGains = pid.Gains{Kp: 1.5, Ki: 0.15, Kd: 0, OutMin: -100, OutMax: 100}
)

// Control implements the DOAS control function. The PID output spans
// -100..100: negative is cooling-coil demand, positive is heating-coil
// demand, mirroring a single tempering coil with reversible duty.
func Control(in equipment.Inputs) equipment.Result {
	sat, _ := equipment.FieldFloat(in.Metrics, defaultSupplySetpointF, satKeys...)
	oat, _ := equipment.FieldFloat(in.Metrics, 55, oatKeys...)

	setpoint := in.Config.Setpoint
	if setpoint == 0 {
		setpoint = defaultSupplySetpointF
	}

	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(sat, setpoint, in.Dt, state)

	heating, cooling := 0.0, 0.0
	if output > 0 {
		heating = output
	} else {
		cooling = -output
	}

	wheelEnabled := math.Abs(oat-setpoint) >= recoveryThresholdF

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "heatingValvePosition", heating),
			equipment.Command(in, "coolingValvePosition", cooling),
			equipment.Command(in, "energyRecoveryEnable", wheelEnabled),
			equipment.Command(in, "fanEnable", true),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}
