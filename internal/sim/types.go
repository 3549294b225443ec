// Package sim is a deterministic differential-drive simulator. It supplies
// motors, tracking wheel encoders and an inertial sensor backed by an
// integrated rigid-body model, and a pacer that lets motions run faster
// than real time.
package sim

import "math"

// State is the integrated vector of the simulated robot.
type State []float64

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control holds the left and right motor voltages.
type Control []float64

type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, t, dt float64) State
}
