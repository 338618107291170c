// Package boiler implements the comfort and domestic boiler control
// variants from spec.md §4.6: an Outdoor-Air-Reset supply setpoint curve
// for comfort boilers, a fixed setpoint for domestic hot water, and a PID
// loop on supply temperature for both.
package boiler

import (
	"strings"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// EquipmentTypeComfort and EquipmentTypeDomestic are the registry keys
// this package registers its control functions under.
const (
	EquipmentTypeComfort  = "boiler-comfort"
	EquipmentTypeDomestic = "boiler-domestic"
)

// DomesticSetpointF is the fixed domestic-hot-water supply setpoint;
// OAR is disabled for this variant.
const DomesticSetpointF = 134.0

// SafetyHighLimitF mirrors the lead-lag coordinator's boiler health
// threshold (internal/leadlag): a boiler above this supply temperature is
// unsafe regardless of its lead-lag role, so it stops firing here too.
const SafetyHighLimitF = 170.0

const defaultSupplyF = 55.0

var (
	supplyKeys   = []string{"supply", "Supply", "SupplyTemp", "supplyTemperature", "SAT"}
	oatKeys      = []string{"oat", "OAT", "outdoorAirTemp", "OutdoorAirTemp", "outsideTemp"}
	defaultGains = pid.Gains{Kp: 0.5, Ki: 0.05, Kd: 0.05, OutMin: 0, OutMax: 100}
)

// ControlComfort implements the OAR-curve comfort boiler.
func ControlComfort(in equipment.Inputs) equipment.Result {
	supply, _ := equipment.FieldFloat(in.Metrics, defaultSupplyF, supplyKeys...)
	oat, _ := equipment.FieldFloat(in.Metrics, 55, oatKeys...)
	setpoint := oarSetpoint(oat)
	return controlWithSetpoint(in, supply, setpoint, "heating")
}

// ControlDomestic implements the fixed-setpoint domestic hot-water boiler.
// OAR is not consulted.
func ControlDomestic(in equipment.Inputs) equipment.Result {
	supply, _ := equipment.FieldFloat(in.Metrics, defaultSupplyF, supplyKeys...)
	return controlWithSetpoint(in, supply, DomesticSetpointF, "heating")
}

// oarSetpoint maps outdoor air temperature to a supply setpoint on the
// boiler's reset curve: 32°F -> 165°F, 75°F -> 85°F, clamped outside that
// band (spec.md §4.6, boundary behavior in §8).
func oarSetpoint(oat float64) float64 {
	return equipment.Lerp(oat, 32, 165, 75, 85)
}

func controlWithSetpoint(in equipment.Inputs, supply, setpoint float64, controllerKey string) equipment.Result {
	gains := in.Config.GainsFor(controllerKey, defaultGains)
	controller := pid.New(gains, controllerKey)

	state := in.PIDState[controllerKey]
	output, nextState := controller.Step(supply, setpoint, in.Dt, state)

	unhealthy := supply > SafetyHighLimitF ||
		equipment.FieldBool(in.Metrics, "freezestat", "Freezestat") ||
		containsFault(equipment.FieldString(in.Metrics, "status", "Status"))

	firingRate := output
	unitEnable := true
	if unhealthy {
		firingRate = 0
		unitEnable = false
	}

	return equipment.Result{
		Commands: []commandwriter.Command{
			equipment.Command(in, "firingRate", firingRate),
			equipment.Command(in, "unitEnable", unitEnable),
		},
		NewPIDState: equipment.PIDState{controllerKey: nextState},
	}
}

func containsFault(status string) bool {
	lower := strings.ToLower(status)
	return strings.Contains(lower, "fault") || strings.Contains(lower, "error")
}
