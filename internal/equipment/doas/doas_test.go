package doas

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

func TestControl_ColdOATDrivesHeatingAndRecovery(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"sat": 50.0, "oat": 10.0},
		Config:  equipment.Config{EquipmentID: "doas-1"},
	}
	result := Control(in)
	assert.Greater(t, findFloat(t, result, "heatingValvePosition"), 0.0)
	assert.Equal(t, 0.0, findFloat(t, result, "coolingValvePosition"))
	assert.Equal(t, true, findAny(t, result, "energyRecoveryEnable"))
}

func TestControl_MildOATSkipsRecovery(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"sat": 65.0, "oat": 63.0},
		Config:  equipment.Config{EquipmentID: "doas-2"},
	}
	result := Control(in)
	assert.Equal(t, false, findAny(t, result, "energyRecoveryEnable"))
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
