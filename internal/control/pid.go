package control

import (
	"math"
	"time"
)

// minDt guards the derivative term against near-zero time steps.
const minDt = 1e-9

type Gains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// PID is a feedback controller driven by error values rather than state.
// Time between calls is measured with the controller's clock; the first
// call after construction or Reset sees dt = 0.
type PID struct {
	gains         Gains
	windupRange   float64
	signFlipReset bool
	slewRate      float64

	integral   float64
	prevErr    float64
	prevOut    float64
	hasPrevOut bool
	prevT      time.Time
	started    bool

	now func() time.Time
}

// NewPID returns a controller with slew limiting disabled. A windup range
// of zero disables anti-windup.
func NewPID(gains Gains, windupRange float64, signFlipReset bool) *PID {
	return NewPIDWithSlew(gains, windupRange, signFlipReset, 0)
}

func NewPIDWithSlew(gains Gains, windupRange float64, signFlipReset bool, slewRate float64) *PID {
	return &PID{
		gains:         gains,
		windupRange:   windupRange,
		signFlipReset: signFlipReset,
		slewRate:      slewRate,
		now:           time.Now,
	}
}

// SetClock replaces the time source. Intended for tests and simulation.
func (p *PID) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	p.now = now
}

func (p *PID) Update(err float64) float64 {
	now := p.now()
	dt := 0.0
	if p.started {
		dt = now.Sub(p.prevT).Seconds()
		if dt < 0 {
			dt = 0
		}
	}
	p.prevT = now
	p.started = true

	derivative := 0.0
	if dt > minDt {
		derivative = (err - p.prevErr) / dt
	}

	prevErr := p.prevErr
	p.prevErr = err

	p.integral += err * dt
	if p.signFlipReset && err*prevErr < 0 {
		p.integral = 0
	}
	if p.windupRange != 0 && math.Abs(err) > p.windupRange {
		p.integral = 0
	}

	out := p.gains.Kp*err + p.gains.Ki*p.integral + p.gains.Kd*derivative

	if p.hasPrevOut {
		out = SlewLimit(out, p.prevOut, p.slewRate, dt)
	}

	p.prevOut = out
	p.hasPrevOut = true
	return out
}

// Reset clears integral, derivative, slew and timing state. Gains and
// limits are kept.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.prevOut = 0
	p.hasPrevOut = false
	p.prevT = time.Time{}
	p.started = false
}

func (p *PID) Gains() Gains      { return p.gains }
func (p *PID) SetGains(g Gains)  { p.gains = g }
func (p *PID) Kp() float64       { return p.gains.Kp }
func (p *PID) Ki() float64       { return p.gains.Ki }
func (p *PID) Kd() float64       { return p.gains.Kd }
func (p *PID) SetKp(v float64)   { p.gains.Kp = v }
func (p *PID) SetKi(v float64)   { p.gains.Ki = v }
func (p *PID) SetKd(v float64)   { p.gains.Kd = v }
func (p *PID) Integral() float64 { return p.integral }

func (p *PID) PreviousError() float64 { return p.prevErr }

// PreviousOutput reports the last output and whether one exists since the
// last Reset.
func (p *PID) PreviousOutput() (float64, bool) { return p.prevOut, p.hasPrevOut }

func (p *PID) WindupRange() float64     { return p.windupRange }
func (p *PID) SetWindupRange(v float64) { p.windupRange = v }
func (p *PID) SignFlipReset() bool      { return p.signFlipReset }
func (p *PID) SetSignFlipReset(v bool)  { p.signFlipReset = v }
func (p *PID) SlewRate() float64        { return p.slewRate }
func (p *PID) SetSlewRate(v float64)    { p.slewRate = v }

// SlewLimit moves current toward target by at most rate*dt. A rate of
// zero or less disables limiting.
func SlewLimit(target, current, rate, dt float64) float64 {
	if rate <= 0 {
		return target
	}
	maxDelta := rate * dt
	delta := target - current
	if math.Abs(delta) <= maxDelta {
		return target
	}
	return current + math.Copysign(maxDelta, delta)
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.gains.Kp,
		"Ki":     p.gains.Ki,
		"Kd":     p.gains.Kd,
		"Windup": p.windupRange,
		"Slew":   p.slewRate,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.gains.Kp = value
	case "Ki":
		p.gains.Ki = value
	case "Kd":
		p.gains.Kd = value
	case "Windup":
		p.windupRange = value
	case "Slew":
		p.slewRate = value
	}
}
