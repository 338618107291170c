package equipment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldFloat_FallsBackThroughNameVariants(t *testing.T) {
	fields := map[string]any{"SupplyTemp": 142.5}
	v, ok := FieldFloat(fields, 55, "supply", "Supply", "SupplyTemp", "supplyTemperature")
	assert.True(t, ok)
	assert.Equal(t, 142.5, v)
}

func TestFieldFloat_UsesDefaultWhenMissing(t *testing.T) {
	v, ok := FieldFloat(map[string]any{}, 55, "supply")
	assert.False(t, ok)
	assert.Equal(t, 55.0, v)
}

func TestFieldFloat_CoercesStringValue(t *testing.T) {
	v, ok := FieldFloat(map[string]any{"oat": "53.5"}, 0, "oat")
	assert.True(t, ok)
	assert.Equal(t, 53.5, v)
}

func TestFieldBool_CoercesVariants(t *testing.T) {
	assert.True(t, FieldBool(map[string]any{"freezestat": true}, "freezestat"))
	assert.True(t, FieldBool(map[string]any{"freezestat": "true"}, "freezestat"))
	assert.True(t, FieldBool(map[string]any{"freezestat": 1.0}, "freezestat"))
	assert.False(t, FieldBool(map[string]any{}, "freezestat"))
}

func TestLerp_MidpointAndClamping(t *testing.T) {
	assert.Equal(t, 125.0, Lerp(53.5, 32, 165, 75, 85))
	assert.Equal(t, 165.0, Lerp(10, 32, 165, 75, 85))
	assert.Equal(t, 85.0, Lerp(90, 32, 165, 75, 85))
}
