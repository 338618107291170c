// Package faircoil implements the fan-coil control variant from spec.md
// §4.6: auto/heating/cooling mode selection with a deadband around the
// room setpoint, one PID controller per mode, and an outdoor-air damper
// that opens only in a mild-weather OAT band.
package faircoil

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "fan-coil"

const (
	defaultSetpointF = 72.0
	defaultDeadbandF = 1.0
	damperOpenLowF   = 40.0
	damperOpenHighF  = 80.0
)

var (
	roomKeys = []string{"roomTemp", "RoomTemp", "room", "Room", "zoneTemp"}
	oatKeys  = []string{"oat", "OAT", "outdoorAirTemp", "OutdoorAirTemp", "outsideTemp"}

	defaultHeatGains = pid.Gains{Kp: 5, Ki: 0.1, Kd: 0, OutMin: 0, OutMax: 100}
	defaultCoolGains = pid.Gains{Kp: 5, Ki: 0.1, Kd: 0, OutMin: 0, OutMax: 100}
)

// Control implements the fan-coil control function.
func Control(in equipment.Inputs) equipment.Result {
	room, _ := equipment.FieldFloat(in.Metrics, 70, roomKeys...)
	oat, _ := equipment.FieldFloat(in.Metrics, 55, oatKeys...)

	setpoint := in.Config.Setpoint
	if setpoint == 0 {
		setpoint = defaultSetpointF
	}
	deadband := in.Config.Deadband
	if deadband == 0 {
		deadband = defaultDeadbandF
	}

	heatState := in.PIDState["heating"]
	coolState := in.PIDState["cooling"]

	mode := selectMode(room, setpoint, deadband, previousMode(heatState, coolState))

	heatGains := in.Config.GainsFor("heating", defaultHeatGains)
	coolGains := in.Config.GainsFor("cooling", defaultCoolGains)

	var heatOutput, coolOutput float64
	newHeat, newCool := pid.State{}, pid.State{}

	switch mode {
	case "heating":
		heatOutput, newHeat = pid.New(heatGains, "heating").Step(room, setpoint, in.Dt, heatState)
	case "cooling":
		coolOutput, newCool = pid.New(coolGains, "cooling").Step(room, setpoint, in.Dt, coolState)
	}

	fanEnabled := mode == "heating" || mode == "cooling"
	damperPosition := 0.0
	if oat > damperOpenLowF && oat < damperOpenHighF {
		damperPosition = 100
	}

	commands := []commandwriter.Command{
		equipment.Command(in, "mode", mode),
		equipment.Command(in, "heatingValvePosition", heatOutput),
		equipment.Command(in, "coolingValvePosition", coolOutput),
		equipment.Command(in, "fanEnabled", fanEnabled),
		equipment.Command(in, "fanSpeed", fanSpeedFor(heatOutput, coolOutput)),
		equipment.Command(in, "outdoorDamperPosition", damperPosition),
	}

	return equipment.Result{
		Commands:    commands,
		NewPIDState: equipment.PIDState{"heating": newHeat, "cooling": newCool},
	}
}

// selectMode applies the ±deadband rule: a room temperature within the
// deadband of setpoint keeps the previous mode rather than thrashing
// (spec.md §8 boundary behavior).
func selectMode(room, setpoint, deadband float64, previous string) string {
	diff := room - setpoint
	switch {
	case diff > deadband:
		return "cooling"
	case diff < -deadband:
		return "heating"
	case previous != "":
		return previous
	default:
		return "idle"
	}
}

// previousMode recovers which controller was active on the last tick from
// its persisted state: the inactive controller's LastOutput is always
// reset to zero, so a non-zero LastOutput identifies the active one.
func previousMode(heat, cool pid.State) string {
	switch {
	case heat.LastOutput > 0:
		return "heating"
	case cool.LastOutput > 0:
		return "cooling"
	default:
		return ""
	}
}

func fanSpeedFor(heatOutput, coolOutput float64) string {
	valve := heatOutput
	if coolOutput > valve {
		valve = coolOutput
	}
	switch {
	case valve >= 75:
		return "high"
	case valve > 0:
		return "medium"
	default:
		return "low"
	}
}
