package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/log"
	"github.com/san-kum/dynodom/internal/motion"
	"github.com/san-kum/dynodom/internal/odom"
	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/sensors"
)

// State layout: pose, side velocities, then one cumulative arc length per
// mounted tracking wheel.
const (
	ix = iota
	iy
	itheta
	ivl
	ivr
	iwheels
)

// drive is the rigid-body model of a skid-free differential drive whose
// sides follow their commanded speed with a first order lag.
type drive struct {
	cfg    Config
	mounts []Mount
	brake  [2]chassis.BrakeMode
}

func (d *drive) StateDim() int { return iwheels + len(d.mounts) }

func (d *drive) Derivative(x State, u Control, _ float64) State {
	dx := make(State, len(x))
	v, w := motion.InverseDifferentialDrive(x[ivl], x[ivr], d.cfg.TrackWidth)
	sin, cos := math.Sincos(x[itheta])

	dx[ix] = v * sin
	dx[iy] = v * cos
	dx[itheta] = w
	dx[ivl] = d.accel(x[ivl], u[0], d.brake[0])
	dx[ivr] = d.accel(x[ivr], u[1], d.brake[1])

	for i, m := range d.mounts {
		if m.Axis == Horizontal {
			dx[iwheels+i] = -w * m.Offset
		} else {
			dx[iwheels+i] = v - w*m.Offset
		}
	}
	return dx
}

func (d *drive) target(volts float64) float64 {
	return volts / d.cfg.MaxVoltage * d.cfg.MaxSpeed
}

func (d *drive) accel(v, volts float64, mode chassis.BrakeMode) float64 {
	tau := d.cfg.MotorLag.Seconds()
	if tau <= 0 {
		return 0
	}
	if volts == 0 {
		if mode == chassis.Coast {
			tau *= 4
		} else {
			tau /= 4
		}
	}
	return (d.target(volts) - v) / tau
}

// Robot is a simulated differential drive. It is safe for concurrent use;
// motors, encoders and the inertial sensor all share its lock.
type Robot struct {
	mu    sync.Mutex
	cfg   Config
	dyn   *drive
	integ Integrator
	rng   *rand.Rand

	x       State
	t       float64
	volts   [2]float64
	elapsed time.Duration

	left, right *Motor
	encoders    []*Encoder
	imu         *IMU
	odom        odom.Sensors
}

func NewRobot(cfg Config) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	integ, err := NewIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	r := &Robot{
		cfg:   cfg,
		dyn:   &drive{cfg: cfg, mounts: cfg.Layout.Wheels},
		integ: integ,
		rng:   rand.New(rand.NewPCG(uint64(cfg.Seed), 0x6f646f6d)),
	}
	r.x = make(State, r.dyn.StateDim())
	r.x[ix], r.x[iy], r.x[itheta] = cfg.Start.X, cfg.Start.Y, cfg.Start.Theta
	r.left = &Motor{r: r, side: 0}
	r.right = &Motor{r: r, side: 1}

	var vertical, horizontal []*sensors.TrackingWheel
	for i, m := range cfg.Layout.Wheels {
		enc := &Encoder{r: r, idx: i, mount: m}
		r.encoders = append(r.encoders, enc)
		w := sensors.NewTrackingWheel(enc, m.Diameter, m.Offset, m.Ratio)
		if m.Axis == Horizontal {
			horizontal = append(horizontal, w)
		} else {
			vertical = append(vertical, w)
		}
	}
	r.odom.Vertical1, r.odom.Vertical2 = pick(vertical)
	r.odom.Horizontal1, r.odom.Horizontal2 = pick(horizontal)
	if cfg.Layout.Inertial {
		r.imu = &IMU{r: r, failures: cfg.CalibrationFailures}
		r.odom.Inertial = r.imu
	}
	return r, nil
}

func pick(ws []*sensors.TrackingWheel) (*sensors.TrackingWheel, *sensors.TrackingWheel) {
	switch len(ws) {
	case 0:
		return nil, nil
	case 1:
		return ws[0], nil
	default:
		return ws[0], ws[1]
	}
}

func (r *Robot) Config() Config { return r.cfg }

// Sensors returns the odometry sensor set wired to the simulated devices.
func (r *Robot) Sensors() odom.Sensors { return r.odom }

func (r *Robot) Encoders() []*Encoder { return r.encoders }

// IMU returns the inertial sensor, or nil when the layout has none.
func (r *Robot) IMU() *IMU { return r.imu }

func (r *Robot) Drivetrain() chassis.Drivetrain {
	return chassis.Drivetrain{
		Left:          r.left,
		Right:         r.right,
		TrackWidth:    r.cfg.TrackWidth,
		WheelDiameter: r.cfg.WheelDiameter,
		MaxVoltage:    r.cfg.MaxVoltage,
	}
}

// Pose is the ground truth pose, theta in radians.
func (r *Robot) Pose() pose.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return pose.New(r.x[ix], r.x[iy], r.x[itheta])
}

// Velocity returns the left and right side speeds.
func (r *Robot) Velocity() (float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.x[ivl], r.x[ivr]
}

func (r *Robot) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Advance integrates the model forward by d in steps of at most
// Config.Step.
func (r *Robot) Advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := d.Seconds()
	step := r.cfg.Step.Seconds()
	for remaining > 1e-12 {
		h := math.Min(step, remaining)
		r.step(h)
		remaining -= h
	}
	r.elapsed += d
}

func (r *Robot) step(h float64) {
	u := Control{r.volts[0], r.volts[1]}
	if r.cfg.MotorLag <= 0 {
		r.x[ivl] = r.dyn.target(u[0])
		r.x[ivr] = r.dyn.target(u[1])
	}

	next := r.integ.Step(r.dyn, r.x, u, r.t, h)
	if r.cfg.WheelNoise > 0 {
		for i := iwheels; i < len(next); i++ {
			d := next[i] - r.x[i]
			next[i] = r.x[i] + d*(1+r.cfg.WheelNoise*r.rng.NormFloat64())
		}
	}
	if !next.IsValid() {
		log.Warn("sim state diverged, holding last state", "t", r.t)
		return
	}
	r.x = next
	r.t += h
}

// Run advances the model against the wall clock until ctx is done.
func (r *Robot) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		return fmt.Errorf("sim: tick must be positive, got %s", tick)
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Advance(now.Sub(last))
			last = now
		}
	}
}
