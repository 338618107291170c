// Package airhandler implements the air-handling-unit control variant
// from spec.md §4.6: a PID loop holds supply air temperature at setpoint,
// and an economizer opens the mixed-air damper for free cooling whenever
// outdoor air is more than economizerMarginF (2°F) cooler than the return air.
package airhandler

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "air-handler"

const (
	defaultSupplySetpointF = 55.0
	economizerMarginF      = 2.0
	// controllerKey is "cooling" so the PID's error-sign convention drives
	// the cooling valve open as supply air rises above setpoint.
	controllerKey = "cooling"
)

var (
	satKeys    = []string{"sat", "SAT", "supplyAirTemp", "SupplyAirTemp"}
	oatKeys    = []string{"oat", "OAT", "outdoorAirTemp", "OutdoorAirTemp"}
	ratKeys    = []string{"rat", "RAT", "returnAirTemp", "ReturnAirTemp"}
	defaultGains = pid.Gains{Kp: 1, Ki: 0.1, Kd: 0.05, OutMin: 0, OutMax: 100}
)

// Control implements the air-handler control function.
func Control(in equipment.Inputs) equipment.Result {
	sat, _ := equipment.FieldFloat(in.Metrics, defaultSupplySetpointF, satKeys...)
	oat, _ := equipment.FieldFloat(in.Metrics, 55, oatKeys...)
	rat, _ := equipment.FieldFloat(in.Metrics, 72, ratKeys...)

	setpoint := in.Config.Setpoint
	if setpoint == 0 {
		setpoint = defaultSupplySetpointF
	}

	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(sat, setpoint, in.Dt, state)

	economizerOpen := oat < rat-economizerMarginF
	damperPosition := 0.0
	if economizerOpen {
		damperPosition = 100
	}

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "coolingValvePosition", output),
			equipment.Command(in, "fanEnable", true),
			equipment.Command(in, "economizerDamperPosition", damperPosition),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}
