// Package pid implements the Proportional-Integral-Derivative controller
// shared by every equipment control function. A Controller is pure given its
// State: no I/O, no locking. The worker pool's one-job-per-equipment
// invariant is what makes concurrent invocation on the same controller key
// safe without a mutex here.
package pid

import "math"

// Gains holds the tuning parameters and output bounds for one controller.
type Gains struct {
	Kp     float64
	Ki     float64
	Kd     float64
	OutMin float64
	OutMax float64
}

// State is the per-key record a Controller carries between steps.
type State struct {
	Integral     float64
	PreviousError float64
	LastOutput   float64
}

// Controller computes one PID step. ControllerKey distinguishes error-sign
// conventions: "cooling" controllers want output to rise as input rises
// above setpoint; every other key wants output to rise as input falls below
// setpoint (the conventional heating/firing-rate sense).
type Controller struct {
	Gains         Gains
	ControllerKey string
}

// New creates a Controller for the given gains and key.
func New(gains Gains, controllerKey string) Controller {
	return Controller{Gains: gains, ControllerKey: controllerKey}
}

// Step advances the controller by one tick of duration dt, given the latest
// input and setpoint, and returns the new output together with the state to
// persist for the next call.
func (c Controller) Step(input, setpoint float64, dt float64, state State) (output float64, next State) {
	var errSignal float64
	if c.ControllerKey == "cooling" {
		errSignal = input - setpoint
	} else {
		errSignal = setpoint - input
	}

	proportional := c.Gains.Kp * errSignal

	ki := c.Gains.Ki
	if ki <= 0 {
		ki = 0.1
	}
	integralClamp := (c.Gains.OutMax - c.Gains.OutMin) / math.Max(ki, 0.1)

	candidateIntegral := state.Integral + errSignal*dt
	saturatedBefore := state.LastOutput >= c.Gains.OutMax || state.LastOutput <= c.Gains.OutMin
	reducesSaturation := (state.LastOutput >= c.Gains.OutMax && errSignal < 0) ||
		(state.LastOutput <= c.Gains.OutMin && errSignal > 0)

	integral := state.Integral
	if !saturatedBefore || reducesSaturation {
		integral = candidateIntegral
	}
	integral = clamp(integral, -integralClamp, integralClamp)

	var derivative float64
	if dt > 0 {
		derivative = c.Gains.Kd * (errSignal - state.PreviousError) / dt
	}

	raw := proportional + c.Gains.Ki*integral + derivative
	output = clamp(raw, c.Gains.OutMin, c.Gains.OutMax)

	next = State{
		Integral:      integral,
		PreviousError: errSignal,
		LastOutput:    output,
	}
	return output, next
}

// Saturated reports whether the last computed output was clamped at a bound,
// and which bound ("high" or "low").
func (s State) Saturated(gains Gains) (bound string, saturated bool) {
	switch {
	case s.LastOutput >= gains.OutMax:
		return "high", true
	case s.LastOutput <= gains.OutMin:
		return "low", true
	default:
		return "", false
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
