package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

func TestControl_DrivesOutputTowardSetpoint(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"value": 10.0},
		Config:  equipment.Config{EquipmentID: "gen-1", Setpoint: 20},
	}
	result := Control(in)
	assert.Greater(t, result.Commands[0].Value.(float64), 0.0)
	assert.Equal(t, "output", result.Commands[0].CommandType)
}

func TestControl_AtSetpointNoIntegratedOutput(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"value": 20.0},
		Config:  equipment.Config{EquipmentID: "gen-2", Setpoint: 20},
	}
	result := Control(in)
	assert.Equal(t, 0.0, result.Commands[0].Value.(float64))
}
