package faircoil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatacontrols/bms-core/internal/commandwriter"
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/pid"
)

// TestControl_CoolingModeEntry mirrors spec scenario S2.
func TestControl_CoolingModeEntry(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"roomTemp": 76.0, "oat": 60.0},
		Config:  equipment.Config{EquipmentID: "fc-1", Setpoint: 72},
		PIDState: equipment.PIDState{},
	}

	result := Control(in)

	require.Len(t, result.Commands, 6)
	assert.Equal(t, "cooling", findCommand(t, result.Commands, "mode").Value)

	cooling := findCommand(t, result.Commands, "coolingValvePosition")
	assert.Greater(t, cooling.Value, 0.0)

	heating := findCommand(t, result.Commands, "heatingValvePosition")
	assert.Equal(t, 0.0, heating.Value)

	assert.Equal(t, true, findCommand(t, result.Commands, "fanEnabled").Value)
	assert.Equal(t, "medium", findCommand(t, result.Commands, "fanSpeed").Value)
	assert.Equal(t, 100.0, findCommand(t, result.Commands, "outdoorDamperPosition").Value)
}

func TestControl_DamperClosedOutsideMildBand(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"roomTemp": 76.0, "oat": 20.0},
		Config:  equipment.Config{EquipmentID: "fc-1", Setpoint: 72},
	}
	result := Control(in)
	assert.Equal(t, 0.0, findCommand(t, result.Commands, "outdoorDamperPosition").Value)
}

func TestControl_HeatingModeEntry(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"roomTemp": 65.0, "oat": 60.0},
		Config:  equipment.Config{EquipmentID: "fc-2", Setpoint: 72},
	}
	result := Control(in)
	assert.Equal(t, "heating", findCommand(t, result.Commands, "mode").Value)
	assert.Greater(t, findCommand(t, result.Commands, "heatingValvePosition").Value, 0.0)
	assert.Equal(t, 0.0, findCommand(t, result.Commands, "coolingValvePosition").Value)
}

func TestControl_WithinDeadbandHoldsPreviousMode(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"roomTemp": 72.5, "oat": 60.0},
		Config:  equipment.Config{EquipmentID: "fc-3", Setpoint: 72},
		PIDState: equipment.PIDState{
			"cooling": pid.State{LastOutput: 10},
		},
	}
	result := Control(in)
	assert.Equal(t, "cooling", findCommand(t, result.Commands, "mode").Value)
}

func TestControl_WithinDeadbandNoPriorModeIsIdle(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"roomTemp": 72.5, "oat": 60.0},
		Config:  equipment.Config{EquipmentID: "fc-4", Setpoint: 72},
	}
	result := Control(in)
	assert.Equal(t, "idle", findCommand(t, result.Commands, "mode").Value)
	assert.Equal(t, false, findCommand(t, result.Commands, "fanEnabled").Value)
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
