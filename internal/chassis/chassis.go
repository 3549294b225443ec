// Package chassis drives a differential drivetrain through point and pose
// motions using the shared odometry engine.
package chassis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/dynodom/internal/control"
	"github.com/san-kum/dynodom/internal/log"
	"github.com/san-kum/dynodom/internal/motion"
	"github.com/san-kum/dynodom/internal/odom"
	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/scheduler"
	"github.com/san-kum/dynodom/internal/sensors"
)

var (
	ErrNotReady      = errors.New("chassis: motion not ready")
	ErrNotCalibrated = errors.New("chassis: odometry sensors not calibrated")
	ErrNoSensors     = errors.New("chassis: no odometry sensors given")
	ErrIdle          = errors.New("chassis: no motion running")
)

type Result int

const (
	Completed Result = iota
	Timeout
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "completed"
	}
}

// Step is one control tick of a motion.
type Step struct {
	MotionID uuid.UUID
	Kind     motion.Kind
	Elapsed  time.Duration
	Pose     pose.Pose
	Lateral  float64
	Angular  float64
	Left     float64
	Right    float64
	Error    float64
}

// Report summarizes a finished motion.
type Report struct {
	ID       uuid.UUID
	Kind     motion.Kind
	Target   pose.Pose
	Result   Result
	Started  time.Time
	Elapsed  time.Duration
	Steps    int
	Final    pose.Pose
	Error    float64
	Traveled float64
}

type Observer interface {
	OnStep(s Step)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Step)

func (f ObserverFunc) OnStep(s Step) { f(s) }

type Chassis struct {
	drive Drivetrain
	odom  *odom.Engine
	sched *scheduler.Scheduler

	pacer    Pacer
	attempts int
	backoff  time.Duration

	// run serializes motions.
	run sync.Mutex

	mu        sync.Mutex
	observers []Observer
	active    bool
	gains     map[string]float64
	pending   []tune
}

type tune struct {
	name  string
	value float64
}

type Option func(*Chassis)

func WithPacer(p Pacer) Option {
	return func(c *Chassis) { c.pacer = p }
}

// WithCalibration sets the inertial calibration retry policy.
func WithCalibration(attempts int, backoff time.Duration) Option {
	return func(c *Chassis) {
		c.attempts = attempts
		c.backoff = backoff
	}
}

func WithObserver(o Observer) Option {
	return func(c *Chassis) { c.observers = append(c.observers, o) }
}

// New builds a chassis. sched may be nil when the caller drives odometry
// updates itself, as the simulator pacer does.
func New(drive Drivetrain, engine *odom.Engine, sched *scheduler.Scheduler, opts ...Option) *Chassis {
	c := &Chassis{
		drive:    drive,
		odom:     engine,
		sched:    sched,
		pacer:    Realtime{Tick: DefaultTick},
		attempts: sensors.CalibrationAttempts,
		backoff:  sensors.CalibrationBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chassis) AddObserver(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

func (c *Chassis) Drivetrain() Drivetrain { return c.drive }
func (c *Chassis) Odometry() *odom.Engine { return c.odom }

// Calibrate calibrates the inertial sensor, zeroes the tracking wheels and
// installs the sensors into odometry. The scheduler is started when it is
// configured to auto-start.
func (c *Chassis) Calibrate(ctx context.Context, s odom.Sensors) error {
	if s.Empty() {
		return ErrNoSensors
	}
	if s.Inertial != nil {
		if err := sensors.CalibrateInertial(ctx, s.Inertial, c.attempts, c.backoff); err != nil {
			return err
		}
	}
	if err := s.Reset(); err != nil {
		return fmt.Errorf("chassis: reset tracking wheels: %w", err)
	}
	c.odom.Configure(s)

	if c.sched != nil && c.sched.Config().AutoStart {
		if err := c.sched.Start(); err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
			return fmt.Errorf("chassis: start odometry: %w", err)
		}
	}
	log.Info("chassis calibrated")
	return nil
}

func (c *Chassis) Pose(radians bool) pose.Pose       { return c.odom.Pose(radians) }
func (c *Chassis) SetPose(p pose.Pose, radians bool) { c.odom.SetPose(p, radians) }

func (c *Chassis) Brake(mode BrakeMode) {
	c.drive.Left.Brake(mode)
	c.drive.Right.Brake(mode)
}

// Stop commands zero volts to both sides.
func (c *Chassis) Stop() {
	c.command(0, 0)
}

// MoveToPoint drives to (x, y). A timeout of zero or less never expires.
func (c *Chassis) MoveToPoint(ctx context.Context, x, y float64, timeout time.Duration, p motion.PointParams) (Report, error) {
	p.X, p.Y = x, y
	return c.Execute(ctx, motion.NewPoint(p), timeout)
}

// MoveToPose drives to target, whose heading is in radians.
func (c *Chassis) MoveToPose(ctx context.Context, target pose.Pose, timeout time.Duration, p motion.PoseParams) (Report, error) {
	p.Target = target
	return c.Execute(ctx, motion.NewPose(p), timeout)
}

// Execute runs m to completion, timeout or cancellation. Motions are
// serialized; the drivetrain is commanded to zero volts on every exit.
func (c *Chassis) Execute(ctx context.Context, m *motion.Motion, timeout time.Duration) (Report, error) {
	if err := m.IsReady(); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if !c.odom.Configured() {
		return Report{}, ErrNotCalibrated
	}

	c.run.Lock()
	defer c.run.Unlock()

	m.SetClock(c.pacer.Now)
	m.Reset()
	c.begin(m)
	defer c.end()

	rep := Report{
		ID:      uuid.New(),
		Kind:    m.Kind(),
		Target:  m.Target(),
		Started: c.pacer.Now(),
	}
	lg := log.With("motion", rep.ID.String(), "kind", rep.Kind.String())
	lg.Info("motion started", "target", rep.Target.String(), "timeout", timeout)

	defer c.command(0, 0)

	rep.Result = c.loop(ctx, m, timeout, &rep)

	rep.Elapsed = c.pacer.Now().Sub(rep.Started)
	rep.Final = c.odom.Pose(true)
	rep.Error = m.Error()
	rep.Traveled = m.DistanceTraveled()
	lg.Info("motion finished", "result", rep.Result.String(), "elapsed", rep.Elapsed, "error", rep.Error)
	return rep, nil
}

func (c *Chassis) loop(ctx context.Context, m *motion.Motion, timeout time.Duration, rep *Report) Result {
	for {
		if ctx.Err() != nil {
			return Cancelled
		}

		c.applyTunes(m)
		cur := c.odom.Pose(true)
		lat, ang := m.Update(cur)
		if m.IsFinished() {
			return Completed
		}

		elapsed := c.pacer.Now().Sub(rep.Started)
		if (timeout > 0 && elapsed > timeout) || m.ExitTimedOut() {
			return Timeout
		}

		left, right := c.command(lat, ang)
		rep.Steps++
		c.notify(Step{
			MotionID: rep.ID,
			Kind:     rep.Kind,
			Elapsed:  elapsed,
			Pose:     cur,
			Lateral:  lat,
			Angular:  ang,
			Left:     left,
			Right:    right,
			Error:    m.Error(),
		})

		if err := c.pacer.Wait(ctx); err != nil {
			return Cancelled
		}
	}
}

// Tune adjusts a PID parameter of the running motion by the names Gains
// reports, for example "lateral.Kp". The change lands on the next tick.
func (c *Chassis) Tune(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s = %v", motion.ErrInvalidParams, name, v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrIdle
	}
	if _, ok := c.gains[name]; !ok {
		return fmt.Errorf("%w: %q", control.ErrUnknownParam, name)
	}
	c.pending = append(c.pending, tune{name, v})
	return nil
}

// Gains returns the PID parameters of the running or most recent motion.
func (c *Chassis) Gains() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.gains))
	for k, v := range c.gains {
		out[k] = v
	}
	return out
}

func (c *Chassis) begin(m *motion.Motion) {
	c.mu.Lock()
	c.active = true
	c.gains = m.Gains()
	c.pending = nil
	c.mu.Unlock()
}

func (c *Chassis) end() {
	c.mu.Lock()
	c.active = false
	c.pending = nil
	c.mu.Unlock()
}

func (c *Chassis) applyTunes(m *motion.Motion) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	for _, t := range pending {
		if err := m.Tune(t.name, t.value); err != nil {
			log.Warn("tune rejected", "param", t.name, "error", err)
			continue
		}
		log.Debug("tuned", "param", t.name, "value", t.value)
	}
	gains := m.Gains()
	c.mu.Lock()
	c.gains = gains
	c.mu.Unlock()
}

// command mixes and sends voltages, returning them.
func (c *Chassis) command(lat, ang float64) (float64, float64) {
	l, r := Mix(lat, ang, SpeedCeiling)
	lv, rv := c.drive.Volts(l), c.drive.Volts(r)
	c.drive.Left.MoveVoltage(lv)
	c.drive.Right.MoveVoltage(rv)
	return lv, rv
}

// notify runs observers outside the lock so they may add observers or
// tune the motion.
func (c *Chassis) notify(s Step) {
	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()
	for _, o := range observers {
		o.OnStep(s)
	}
}
