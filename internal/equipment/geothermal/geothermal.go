// Package geothermal implements the geothermal heat-pump control variant
// from spec.md §4.6: a PID loop on loop temperature whose output is
// quantized into compressor stages rather than driving a continuous
// valve, since ground-source compressors stage rather than modulate.
package geothermal

import (
	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentType is the registry key this package registers under.
const EquipmentType = "geothermal"

const (
	defaultLoopSetpointF = 55.0
	stage2ThresholdPct   = 60.0
	controllerKey        = "primary"
)

var (
	loopKeys     = []string{"loopTemp", "LoopTemp", "entering", "EnteringWaterTemp"}
	defaultGains = pid.Gains{Kp: 1, Ki: 0.1, Kd: 0, OutMin: 0, OutMax: 100}
)

// Control implements the geothermal control function.
func Control(in equipment.Inputs) equipment.Result {
	loopTemp, _ := equipment.FieldFloat(in.Metrics, defaultLoopSetpointF, loopKeys...)

	setpoint := in.Config.Setpoint
	if setpoint == 0 {
		setpoint = defaultLoopSetpointF
	}

	gains := in.Config.GainsFor(controllerKey, defaultGains)
	state := in.PIDState[controllerKey]
	output, nextState := pid.New(gains, controllerKey).Step(loopTemp, setpoint, in.Dt, state)

	stage := 0
	if output > 0 {
		stage = 1
	}
	if output >= stage2ThresholdPct {
		stage = 2
	}

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "compressorStage", stage),
			equipment.Command(in, "loopPumpEnable", stage > 0),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}
