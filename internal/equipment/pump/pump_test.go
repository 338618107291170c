package pump

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/leadlag"
)

func TestControl_LeadRunsPID(t *testing.T) {
	in := equipment.Inputs{
		Metrics:       map[string]any{"pressure": 40.0},
		Config:        equipment.Config{EquipmentID: "pump-1", Setpoint: 60},
		InGroup:       true,
		GroupDecision: leadlag.Decision{IsLead: true, ShouldRun: true},
	}
	result := Control(in)
	speed := findCommand(t, result, "speed")
	assert.Greater(t, speed, 0.0)
	assert.Equal(t, true, findCommandAny(t, result, "pumpEnable"))
}

func TestControl_LagIsCommandedOff(t *testing.T) {
	in := equipment.Inputs{
		Metrics:       map[string]any{"pressure": 40.0},
		Config:        equipment.Config{EquipmentID: "pump-2", Setpoint: 60},
		InGroup:       true,
		GroupDecision: leadlag.Decision{IsLead: false, ShouldRun: false},
	}
	result := Control(in)
	assert.Equal(t, 0.0, findCommand(t, result, "speed"))
	assert.Equal(t, false, findCommandAny(t, result, "pumpEnable"))
}

func TestControl_UngroupedRunsPID(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"pressure": 40.0},
		Config:  equipment.Config{EquipmentID: "pump-3", Setpoint: 60},
	}
	result := Control(in)
	assert.Greater(t, findCommand(t, result, "speed"), 0.0)
}

func findCommand(t *testing.T, result equipment.Result, commandType string) float64 {
	t.Helper()
	for _, c := range result.Commands {
		if c.CommandType == commandType {
			v, _ := c.Value.(float64)
			return v
		}
	}
	t.Fatalf("no command of type %q found", commandType)
	return 0
}

func findCommandAny(t *testing.T, result equipment.Result, commandType string) any {
	t.Helper()
	for _, c := range result.Commands {
		if c.CommandType == commandType {
			return c.Value
		}
	}
	t.Fatalf("no command of type %q found", commandType)
	return nil
}
