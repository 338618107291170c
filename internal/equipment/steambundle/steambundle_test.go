package steambundle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

func TestControl_ColdSupplyOpensValve(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"supply": 120.0},
		Config:  equipment.Config{EquipmentID: "sb-1", Setpoint: 140},
	}
	result := Control(in)
	assert.Greater(t, findFloat(t, result, "steamValvePosition"), 0.0)
	assert.Equal(t, false, findAny(t, result, "safetyTripped"))
}

func TestControl_OverLimitTripsSafety(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"supply": 190.0},
		Config:  equipment.Config{EquipmentID: "sb-2", Setpoint: 140},
	}
	result := Control(in)
	assert.Equal(t, 0.0, findFloat(t, result, "steamValvePosition"))
	assert.Equal(t, true, findAny(t, result, "safetyTripped"))
}

func findFloat(t *testing.T, result equipment.Result, commandType string) float64 {
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

func findAny(t *testing.T, result equipment.Result, commandType string) any {
	t.Helper()
	for _, c := range result.Commands {
		if c.CommandType == commandType {
			return c.Value
		}
	}
	t.Fatalf("no command of type %q found", commandType)
	return nil
}
