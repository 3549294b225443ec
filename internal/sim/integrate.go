package sim

import (
	"fmt"
	"math"
)

// NewIntegrator returns the stepper registered under name. An empty name
// selects RK4.
func NewIntegrator(name string) (Integrator, error) {
	switch name {
	case "", "rk4":
		return NewRK4(), nil
	case "euler":
		return Euler{}, nil
	case "rk45", "dopri":
		return NewDormandPrince(1e-9), nil
	default:
		return nil, fmt.Errorf("sim: unknown integrator %q", name)
	}
}

type Euler struct{}

func (Euler) Step(dyn Dynamics, x State, u Control, t, dt float64) State {
	dx := dyn.Derivative(x, u, t)
	next := make(State, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}

// RK4 is the classic fourth order Runge-Kutta stepper. Scratch buffers are
// reused between steps, so an RK4 must not be shared across goroutines.
type RK4 struct {
	k1, k2, k3, k4 State
	scratch        State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(State, n)
		r.k2 = make(State, n)
		r.k3 = make(State, n)
		r.k4 = make(State, n)
		r.scratch = make(State, n)
	}
}

func (r *RK4) Step(dyn Dynamics, x State, u Control, t, dt float64) State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, dyn.Derivative(x, u, t))

	for i := range n {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, dyn.Derivative(r.scratch, u, t+dt*0.5))

	for i := range n {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, dyn.Derivative(r.scratch, u, t+dt*0.5))

	for i := range n {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, dyn.Derivative(r.scratch, u, t+dt))

	next := make(State, n)
	dt6 := dt / 6.0
	for i := range n {
		next[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return next
}

// Dormand-Prince tableau.
var (
	dpA = [6]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1}
	dpB = [6][5]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
	}
	dpC = [6]float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84}
	// fifth minus fourth order weights; the seventh stage is FSAL.
	dpE = [7]float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

// DormandPrince is an adaptive RK45 stepper. Step covers dt with as many
// accepted substeps as the tolerance needs, carrying the substep size
// over to the next call.
type DormandPrince struct {
	Tol      float64
	safety   float64
	minScale float64
	maxScale float64
	minStep  float64
	h        float64
	k        [7]State
}

func NewDormandPrince(tol float64) *DormandPrince {
	return &DormandPrince{
		Tol:      tol,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		minStep:  1e-9,
	}
}

func (d *DormandPrince) Step(dyn Dynamics, x State, u Control, t, dt float64) State {
	end := t + dt
	if d.h <= 0 || d.h > dt {
		d.h = dt
	}
	for t < end {
		h := math.Min(d.h, end-t)
		next, errRatio := d.attempt(dyn, x, u, t, h)
		if errRatio <= 1 || h <= d.minStep {
			x, t = next, t+h
		}
		d.h = d.resize(h, errRatio)
	}
	return x
}

// attempt takes one embedded step of size h and returns the fifth order
// solution with its error relative to Tol.
func (d *DormandPrince) attempt(dyn Dynamics, x State, u Control, t, h float64) (State, float64) {
	n := len(x)
	stage := make(State, n)
	for s := range 6 {
		for i := range n {
			sum := 0.0
			for j := range s {
				sum += dpB[s][j] * d.k[j][i]
			}
			stage[i] = x[i] + h*sum
		}
		d.k[s] = dyn.Derivative(stage, u, t+dpA[s]*h)
	}

	next := make(State, n)
	for i := range n {
		sum := 0.0
		for s := range 6 {
			sum += dpC[s] * d.k[s][i]
		}
		next[i] = x[i] + h*sum
	}
	d.k[6] = dyn.Derivative(next, u, t+h)

	errMax := 0.0
	for i := range n {
		est := 0.0
		for s := range 7 {
			est += dpE[s] * d.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(h*d.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(h*est)/scale)
	}
	return next, errMax / d.Tol
}

func (d *DormandPrince) resize(h, errRatio float64) float64 {
	switch {
	case errRatio > 1:
		return math.Max(d.minStep, h*math.Max(d.minScale, d.safety*math.Pow(errRatio, -0.25)))
	case errRatio > 0:
		return h * math.Min(d.maxScale, d.safety*math.Pow(errRatio, -0.2))
	default:
		return h * d.maxScale
	}
}
