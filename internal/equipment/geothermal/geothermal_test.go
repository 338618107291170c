package geothermal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

func TestControl_LowLoopTempEngagesStage1(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"loopTemp": 50.0},
		Config:  equipment.Config{EquipmentID: "geo-1", Setpoint: 55},
	}
	result := Control(in)
	stage := findInt(t, result, "compressorStage")
	assert.GreaterOrEqual(t, stage, 1)
	assert.Equal(t, true, findAny(t, result, "loopPumpEnable"))
}

func TestControl_AtSetpointStaysOff(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"loopTemp": 55.0},
		Config:  equipment.Config{EquipmentID: "geo-2", Setpoint: 55},
	}
	result := Control(in)
	assert.Equal(t, 0, findInt(t, result, "compressorStage"))
	assert.Equal(t, false, findAny(t, result, "loopPumpEnable"))
}

func findInt(t *testing.T, result equipment.Result, commandType string) int {
	t.Helper()
	for _, c := range result.Commands {
		if c.CommandType == commandType {
			v, _ := c.Value.(int)
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
