package boiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// TestControlComfort_OARMidpointFirstTick mirrors spec scenario S1.
func TestControlComfort_OARMidpointFirstTick(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"supply": 100.0, "oat": 53.5},
		Config: equipment.Config{
			EquipmentID: "boiler-1",
			Gains:       map[string]pid.Gains{"heating": {Kp: 0.5, Ki: 0.05, Kd: 0.05, OutMin: 0, OutMax: 100}},
		},
		PIDState: equipment.PIDState{},
		Dt:       0,
	}

	result := ControlComfort(in)

	require.Len(t, result.Commands, 2)
	firing := findCommand(t, result.Commands, "firingRate")
	assert.InDelta(t, 12.5, firing.Value, 0.001)

	enable := findCommand(t, result.Commands, "unitEnable")
	assert.Equal(t, true, enable.Value)
}

func TestOARSetpoint_Boundaries(t *testing.T) {
	assert.Equal(t, 165.0, oarSetpoint(32))
	assert.Equal(t, 85.0, oarSetpoint(75))
	assert.Equal(t, 125.0, oarSetpoint(53.5))
	assert.Equal(t, 165.0, oarSetpoint(10))
	assert.Equal(t, 85.0, oarSetpoint(90))
}

func TestControlComfort_HighSupplyTripsSafety(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"supply": 175.0, "oat": 53.5},
		Config:  equipment.Config{EquipmentID: "boiler-1"},
	}
	result := ControlComfort(in)
	firing := findCommand(t, result.Commands, "firingRate")
	assert.Equal(t, 0.0, firing.Value)
	enable := findCommand(t, result.Commands, "unitEnable")
	assert.Equal(t, false, enable.Value)
}

func TestControlDomestic_IgnoresOAR(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"supply": 130.0, "oat": 10.0},
		Config:  equipment.Config{EquipmentID: "boiler-2"},
	}
	result := ControlDomestic(in)
	firing := findCommand(t, result.Commands, "firingRate")
	assert.Greater(t, firing.Value, 0.0)
}

func findCommand(t *testing.T, commands []commandwriter.Command, commandType string) commandwriter.Command {
	t.Helper()
	for _, c := range commands {
		if c.CommandType == commandType {
			return c
		}
	}
	t.Fatalf("no command of type %q found in %v", commandType, commands)
	return commandwriter.Command{}
}
