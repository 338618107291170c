package exhaustfan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

func TestControl_HighCO2RunsFan(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"co2": 1200.0},
		Config:  equipment.Config{EquipmentID: "ef-1", Setpoint: 800},
	}
	result := Control(in)
	assert.Equal(t, true, findAny(t, result, "fanEnable"))
	assert.Greater(t, findFloat(t, result, "fanSpeed"), 0.0)
}

func TestControl_LowCO2StaysOff(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"co2": 500.0},
		Config:  equipment.Config{EquipmentID: "ef-2", Setpoint: 800},
	}
	result := Control(in)
	assert.Equal(t, false, findAny(t, result, "fanEnable"))
	assert.Equal(t, 0.0, findFloat(t, result, "fanSpeed"))
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
