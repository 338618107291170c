package airhandler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

func TestControl_EconomizerOpensWhenOATBelowReturn(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"sat": 60.0, "oat": 55.0, "rat": 72.0},
		Config:  equipment.Config{EquipmentID: "ahu-1"},
	}
	result := Control(in)
	damper := findFloat(t, result, "economizerDamperPosition")
	assert.Equal(t, 100.0, damper)
}

func TestControl_EconomizerClosedWhenOATAboveReturn(t *testing.T) {
	in := equipment.Inputs{
		Metrics: map[string]any{"sat": 60.0, "oat": 80.0, "rat": 72.0},
		Config:  equipment.Config{EquipmentID: "ahu-2"},
	}
	result := Control(in)
	damper := findFloat(t, result, "economizerDamperPosition")
	assert.Equal(t, 0.0, damper)
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
