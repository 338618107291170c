package pid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestController_Step_ComfortBoilerFirstTick mirrors spec scenario S1: a
// first control tick (dt=0, no prior history) produces a proportional-only
// output.
func TestController_Step_ComfortBoilerFirstTick(t *testing.T) {
	gains := Gains{Kp: 0.5, Ki: 0.05, Kd: 0.05, OutMin: 0, OutMax: 100}
	c := New(gains, "heating")

	output, next := c.Step(100, 125.0, 0, State{})

	assert.InDelta(t, 12.5, output, 0.001)
	assert.Equal(t, 0.0, next.Integral)
	assert.Equal(t, 25.0, next.PreviousError)
}

func TestController_Step_CoolingUsesInvertedErrorSign(t *testing.T) {
	gains := Gains{Kp: 1, Ki: 0, Kd: 0, OutMin: 0, OutMax: 100}
	c := New(gains, "cooling")

	output, _ := c.Step(76, 72, 1, State{})

	assert.InDelta(t, 4.0, output, 0.001)
}

func TestController_Step_OutputClampedToBounds(t *testing.T) {
	gains := Gains{Kp: 10, Ki: 0, Kd: 0, OutMin: 0, OutMax: 100}
	c := New(gains, "heating")

	output, next := c.Step(0, 200, 1, State{})

	assert.Equal(t, 100.0, output)
	bound, saturated := next.Saturated(gains)
	assert.True(t, saturated)
	assert.Equal(t, "high", bound)
}

func TestController_Step_IntegralBoundedByAntiWindupClamp(t *testing.T) {
	gains := Gains{Kp: 0, Ki: 0.01, Kd: 0, OutMin: 0, OutMax: 100}
	c := New(gains, "heating")

	state := State{}
	for i := 0; i < 1000; i++ {
		_, state = c.Step(0, 50, 1, state)
	}

	maxIntegral := (gains.OutMax - gains.OutMin) / math.Max(gains.Ki, 0.1)
	assert.LessOrEqual(t, state.Integral, maxIntegral+1e-9)
	assert.GreaterOrEqual(t, state.Integral, -maxIntegral-1e-9)
}

// TestController_Step_ZeroErrorHoldsIntegral exercises the boundary
// behavior: on an unsaturated controller, a zero-error step with a non-zero
// integral leaves the integral unchanged, since there is no saturation to
// reduce.
func TestController_Step_ZeroErrorHoldsIntegral(t *testing.T) {
	gains := Gains{Kp: 1, Ki: 0.1, Kd: 0, OutMin: -100, OutMax: 100}
	c := New(gains, "heating")

	state := State{Integral: 5, PreviousError: 0, LastOutput: 0.5}
	_, next := c.Step(50, 50, 1, state)

	assert.Equal(t, 5.0, next.Integral)
}
