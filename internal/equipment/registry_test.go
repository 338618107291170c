package equipment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_ResolvePrefersSiteOverride(t *testing.T) {
	r := NewRegistry()
	generic := func(in Inputs) Result { return Result{} }
	override := func(in Inputs) Result { return Result{NewPIDState: PIDState{"override": {}}} }

	r.Register("boiler", generic)
	r.RegisterSiteOverride("site-1", "boiler", override)

	fn, ok := r.Resolve("site-1", "boiler")
	assert.True(t, ok)
	assert.NotNil(t, fn)
	assert.Len(t, fn(Inputs{}).NewPIDState, 1)

	fn2, ok := r.Resolve("site-2", "boiler")
	assert.True(t, ok)
	assert.NotNil(t, fn2)
	assert.Nil(t, fn2(Inputs{}).NewPIDState)
}

func TestRegistry_ResolveUnknownTypeNotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Resolve("site-1", "nonexistent")
	assert.False(t, ok)
}
