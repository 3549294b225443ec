package control

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock               { return &fakeClock{t: time.Unix(1000, 0)} }
func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPIDProportionalOnly(t *testing.T) {
	clk := newFakeClock()
	pid := NewPID(Gains{Kp: 2.5}, 0, false)
	pid.SetClock(clk.Now)

	steps := []time.Duration{0, time.Millisecond, 0, 3 * time.Second, 10 * time.Millisecond}
	errs := []float64{4, -1.5, 0, 100, 0.001}
	for i, e := range errs {
		clk.Advance(steps[i])
		if got := pid.Update(e); got != 2.5*e {
			t.Errorf("step %d: expected %f, got %f", i, 2.5*e, got)
		}
	}
}

func TestPIDFirstCallHasNoDerivative(t *testing.T) {
	pid := NewPID(Gains{Kp: 1, Kd: 100}, 0, false)
	pid.SetClock(newFakeClock().Now)

	if got := pid.Update(5); got != 5 {
		t.Errorf("expected 5, got %f", got)
	}
}

func TestPIDZeroDtDoesNotProduceNaN(t *testing.T) {
	clk := newFakeClock()
	pid := NewPID(Gains{Kp: 1, Ki: 1, Kd: 1}, 0, false)
	pid.SetClock(clk.Now)

	for i := 0; i < 3; i++ {
		out := pid.Update(float64(i + 1))
		if math.IsNaN(out) || math.IsInf(out, 0) {
			t.Fatalf("step %d: non-finite output %f", i, out)
		}
	}
	if pid.Integral() != 0 {
		t.Errorf("expected zero integral without elapsed time, got %f", pid.Integral())
	}
}

func TestPIDIntegralAndDerivative(t *testing.T) {
	clk := newFakeClock()
	pid := NewPID(Gains{Kp: 0, Ki: 1, Kd: 1}, 0, false)
	pid.SetClock(clk.Now)

	pid.Update(1)
	clk.Advance(500 * time.Millisecond)
	out := pid.Update(2)

	// integral = 2*0.5, derivative = (2-1)/0.5
	if math.Abs(pid.Integral()-1) > 1e-12 {
		t.Errorf("expected integral 1, got %f", pid.Integral())
	}
	if math.Abs(out-3) > 1e-12 {
		t.Errorf("expected output 3, got %f", out)
	}
}

func TestPIDAntiWindup(t *testing.T) {
	clk := newFakeClock()
	pid := NewPID(Gains{Kp: 1, Ki: 1}, 3, false)
	pid.SetClock(clk.Now)

	for i := 0; i < 20; i++ {
		clk.Advance(10 * time.Millisecond)
		pid.Update(5)
		if pid.Integral() != 0 {
			t.Fatalf("tick %d: expected integral 0, got %f", i, pid.Integral())
		}
	}
}

func TestPIDSignFlipReset(t *testing.T) {
	clk := newFakeClock()
	pid := NewPID(Gains{Ki: 1}, 0, true)
	pid.SetClock(clk.Now)

	for i := 0; i < 5; i++ {
		clk.Advance(10 * time.Millisecond)
		pid.Update(2)
	}
	if pid.Integral() <= 0 {
		t.Fatalf("expected positive integral, got %f", pid.Integral())
	}

	clk.Advance(10 * time.Millisecond)
	pid.Update(-1)
	if pid.Integral() != 0 {
		t.Errorf("expected integral reset on sign flip, got %f", pid.Integral())
	}
}

func TestPIDSignFlipDisabled(t *testing.T) {
	clk := newFakeClock()
	pid := NewPID(Gains{Ki: 1}, 0, false)
	pid.SetClock(clk.Now)

	// The first update has no dt and adds nothing.
	clk.Advance(time.Second)
	pid.Update(2)
	clk.Advance(time.Second)
	pid.Update(2)
	clk.Advance(time.Second)
	pid.Update(-1)

	if math.Abs(pid.Integral()-1) > 1e-12 {
		t.Errorf("expected integral 1, got %f", pid.Integral())
	}
}

func TestPIDSlewLimit(t *testing.T) {
	clk := newFakeClock()
	pid := NewPIDWithSlew(Gains{Kp: 1}, 0, false, 10)
	pid.SetClock(clk.Now)

	if got := pid.Update(0); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}

	clk.Advance(100 * time.Millisecond)
	if got := pid.Update(50); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected output limited to 1, got %f", got)
	}

	clk.Advance(100 * time.Millisecond)
	if got := pid.Update(-50); math.Abs(got-0) > 1e-12 {
		t.Errorf("expected output limited to 0, got %f", got)
	}
}

func TestPIDReset(t *testing.T) {
	clk := newFakeClock()
	pid := NewPIDWithSlew(Gains{Kp: 1, Ki: 1, Kd: 1}, 0, false, 5)
	pid.SetClock(clk.Now)

	pid.Update(1)
	clk.Advance(time.Second)
	pid.Update(2)
	pid.Reset()

	if pid.Integral() != 0 || pid.PreviousError() != 0 {
		t.Errorf("expected cleared state, got integral=%f prev=%f", pid.Integral(), pid.PreviousError())
	}
	if _, ok := pid.PreviousOutput(); ok {
		t.Error("expected no previous output after reset")
	}

	clk.Advance(time.Hour)
	if got := pid.Update(7); got != 7 {
		t.Errorf("expected first call after reset to be proportional only, got %f", got)
	}
}

func TestPIDParams(t *testing.T) {
	pid := NewPID(Gains{Kp: 1, Ki: 2, Kd: 3}, 4, true)

	params := pid.GetParams()
	if params["Kp"] != 1 || params["Ki"] != 2 || params["Kd"] != 3 || params["Windup"] != 4 {
		t.Errorf("unexpected params: %v", params)
	}

	pid.SetParam("Kp", 9)
	pid.SetParam("Slew", 12)
	pid.SetParam("unknown", 1)
	if pid.Kp() != 9 || pid.SlewRate() != 12 {
		t.Errorf("SetParam not applied: kp=%f slew=%f", pid.Kp(), pid.SlewRate())
	}
}

func TestValidateGains(t *testing.T) {
	if err := ValidateGains(Gains{Kp: 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateGains(Gains{Kd: math.NaN()}); err != ErrInvalidGains {
		t.Errorf("expected ErrInvalidGains, got %v", err)
	}
}

func TestSlewLimit(t *testing.T) {
	tests := []struct {
		name                            string
		target, current, rate, dt, want float64
	}{
		{"clamped up", 10, 0, 100, 0.01, 1},
		{"clamped down", -10, 0, 100, 0.01, -1},
		{"within step", 0.5, 0, 100, 0.01, 0.5},
		{"disabled", 10, 0, 0, 0.01, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SlewLimit(tt.target, tt.current, tt.rate, tt.dt); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("SlewLimit = %f, want %f", got, tt.want)
			}
		})
	}
}
