// Package motion implements the closed-loop controllers that drive the
// chassis to a target point or pose.
//
// A [Motion] is a tagged variant over move-to-point and move-to-pose
// (boomerang). Both share the Idle → Active → Finished lifecycle and a
// speed-constraint post-processing step.
//
// Headings use the odometry compass frame: 0 faces +Y and positive angles
// turn clockwise. Positive angular output turns clockwise.
package motion

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/san-kum/dynodom/internal/control"
	"github.com/san-kum/dynodom/internal/pose"
)

// ErrInvalidParams indicates non-finite or out-of-range motion parameters.
var ErrInvalidParams = errors.New("motion: invalid parameters")

type Kind int

const (
	KindPoint Kind = iota
	KindPose
)

func (k Kind) String() string {
	if k == KindPose {
		return "pose"
	}
	return "point"
}

type Phase int

const (
	Idle Phase = iota
	Active
	Finished
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Finished:
		return "finished"
	default:
		return "idle"
	}
}

// Motion is a single point or pose seeking motion. It is not safe for
// concurrent use; the execution loop owns it.
type Motion struct {
	kind  Kind
	point PointParams
	pose  PoseParams

	lateral *control.PID
	angular *control.PID
	exit    control.ExitConditions

	phase     Phase
	close     bool
	finalTurn bool
	traveled  float64
	last      pose.Pose
	hasLast   bool
	carrot    pose.Pose
	hasCarrot bool
}

// NewPoint builds a move-to-point motion. Params are copied.
func NewPoint(p PointParams) *Motion {
	m := &Motion{
		kind:    KindPoint,
		point:   p,
		lateral: control.NewPIDWithSlew(p.Lateral, windupRange, true, p.SlewRate),
		angular: control.NewPIDWithSlew(p.Angular, windupRange, true, p.SlewRate),
		exit:    p.Exit.Clone(),
	}
	m.point.Exit = m.exit
	return m
}

// NewPose builds a move-to-pose motion. Params are copied.
func NewPose(p PoseParams) *Motion {
	m := &Motion{
		kind:    KindPose,
		pose:    p,
		lateral: control.NewPIDWithSlew(p.Lateral, windupRange, true, p.SlewRate),
		angular: control.NewPIDWithSlew(p.Angular, windupRange, true, p.SlewRate),
		exit:    p.Exit.Clone(),
	}
	m.pose.Exit = m.exit
	return m
}

// SetClock replaces the time source of the PIDs and exit conditions.
func (m *Motion) SetClock(now func() time.Time) {
	m.lateral.SetClock(now)
	m.angular.SetClock(now)
	m.exit.SetClock(now)
}

func (m *Motion) Kind() Kind   { return m.kind }
func (m *Motion) Phase() Phase { return m.phase }

// Target returns the target position, and heading for pose motions.
func (m *Motion) Target() pose.Pose {
	if m.kind == KindPose {
		return m.pose.Target
	}
	return pose.New(m.point.X, m.point.Y, 0)
}

// IsReady reports whether the motion may start. The returned error wraps
// ErrInvalidParams.
func (m *Motion) IsReady() error {
	var (
		maxSpeed, minSpeed float64
		gains              []control.Gains
		exit               control.ExitConditions
	)

	switch m.kind {
	case KindPose:
		p := m.pose
		if !p.Target.IsFinite() {
			return fmt.Errorf("%w: target %v is not finite", ErrInvalidParams, p.Target)
		}
		if !finite(p.Lead, p.HorizontalDrift, p.HeadingWeight, p.EarlyExitRange, p.SlewRate) {
			return fmt.Errorf("%w: non-finite tuning value", ErrInvalidParams)
		}
		if p.Lead < 0 || p.HeadingWeight < 0 {
			return fmt.Errorf("%w: lead %f and heading weight %f must not be negative", ErrInvalidParams, p.Lead, p.HeadingWeight)
		}
		maxSpeed, minSpeed = p.MaxSpeed, p.MinSpeed
		gains = []control.Gains{p.Lateral, p.Angular}
		exit = p.Exit
	default:
		p := m.point
		if !finite(p.X, p.Y) {
			return fmt.Errorf("%w: target (%f, %f) is not finite", ErrInvalidParams, p.X, p.Y)
		}
		if !finite(p.EarlyExitRange, p.SlewRate) {
			return fmt.Errorf("%w: non-finite tuning value", ErrInvalidParams)
		}
		maxSpeed, minSpeed = p.MaxSpeed, p.MinSpeed
		gains = []control.Gains{p.Lateral, p.Angular}
		exit = p.Exit
	}

	if !finite(maxSpeed) || maxSpeed <= 0 {
		return fmt.Errorf("%w: max speed must be positive, got %f", ErrInvalidParams, maxSpeed)
	}
	if !finite(minSpeed) || minSpeed < 0 {
		return fmt.Errorf("%w: min speed must be non-negative, got %f", ErrInvalidParams, minSpeed)
	}
	if minSpeed > maxSpeed {
		return fmt.Errorf("%w: min speed %f above max speed %f", ErrInvalidParams, minSpeed, maxSpeed)
	}
	for _, g := range gains {
		if err := control.ValidateGains(g); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}
	if err := control.ValidateExit(exit); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// Gains returns the tunable parameters of both PIDs keyed by axis, for
// example "lateral.Kp" or "angular.Slew".
func (m *Motion) Gains() map[string]float64 {
	out := make(map[string]float64, 10)
	for axis, pid := range m.pids() {
		for name, v := range pid.GetParams() {
			out[axis+"."+name] = v
		}
	}
	return out
}

// Tune sets one PID parameter by the names Gains reports. It takes effect
// on the next Update.
func (m *Motion) Tune(name string, v float64) error {
	axis, param, _ := strings.Cut(name, ".")
	pid, ok := m.pids()[axis]
	if !ok {
		return fmt.Errorf("%w: %q", control.ErrUnknownParam, name)
	}
	if _, ok := pid.GetParams()[param]; !ok {
		return fmt.Errorf("%w: %q", control.ErrUnknownParam, name)
	}
	if !finite(v) {
		return fmt.Errorf("%w: %s = %v", ErrInvalidParams, name, v)
	}
	pid.SetParam(param, v)
	return nil
}

func (m *Motion) pids() map[string]*control.PID {
	return map[string]*control.PID{"lateral": m.lateral, "angular": m.angular}
}

// Reset clears controller and exit state and moves the motion to Active.
func (m *Motion) Reset() {
	m.lateral.Reset()
	m.angular.Reset()
	m.exit.Reset()
	m.phase = Active
	m.close = false
	m.finalTurn = false
	m.traveled = 0
	m.last = pose.Pose{}
	m.hasLast = false
	m.carrot = pose.Pose{}
	m.hasCarrot = false
}

// Update runs one control tick from the current pose (radians) and returns
// the lateral and angular outputs.
func (m *Motion) Update(cur pose.Pose) (float64, float64) {
	if m.phase == Idle {
		m.phase = Active
	}
	if m.hasLast {
		m.traveled += cur.DistanceTo(m.last)
	}
	m.last = cur
	m.hasLast = true

	var lat, ang float64
	var finished bool
	if m.kind == KindPose {
		lat, ang, finished = m.updatePose(cur)
	} else {
		lat, ang, finished = m.updatePoint(cur)
	}
	if finished {
		m.phase = Finished
	}
	return lat, ang
}

func (m *Motion) IsFinished() bool { return m.phase == Finished }

// Error returns the exit metric at the last pose: distance for point
// motions, distance plus weighted heading error for pose motions.
func (m *Motion) Error() float64 {
	if !m.hasLast {
		return 0
	}
	if m.kind == KindPose {
		return m.poseMetric(m.last)
	}
	return m.last.DistanceTo(m.Target())
}

// DistanceRemaining returns the distance to the target from the last pose.
func (m *Motion) DistanceRemaining() (float64, bool) {
	if !m.hasLast {
		return 0, false
	}
	return m.last.DistanceTo(m.Target()), true
}

// DistanceTraveled is the path length accumulated since Reset.
func (m *Motion) DistanceTraveled() float64 { return m.traveled }

// Carrot returns the lead point chased by the last pose update.
func (m *Motion) Carrot() (pose.Pose, bool) { return m.carrot, m.hasCarrot }

// ExitTimedOut reports whether an exit condition gave up waiting for the
// error to settle.
func (m *Motion) ExitTimedOut() bool { return m.exit.TimedOut() }

// FinalTurn reports whether a pose motion has entered its heading phase.
func (m *Motion) FinalTurn() bool { return m.finalTurn }

// steer returns heading and lateral errors toward a point. Backwards
// travel flips the heading and the lateral sign.
func steer(cur pose.Pose, target pose.Pose, forwards bool) (angErr, latErr float64) {
	heading := cur.Theta
	if !forwards {
		heading += math.Pi
	}
	bearing := pose.Heading(cur.AngleTo(target))
	angErr = AngleError(heading, bearing)
	latErr = cur.DistanceTo(target) * math.Cos(angErr)
	if !forwards {
		latErr = -latErr
	}
	return angErr, latErr
}

func clampDirection(lat float64, forwards bool) float64 {
	if forwards {
		return math.Max(lat, 0)
	}
	return math.Min(lat, 0)
}

func (m *Motion) updatePoint(cur pose.Pose) (float64, float64, bool) {
	p := m.point
	target := m.Target()
	dist := cur.DistanceTo(target)
	angErr, latErr := steer(cur, target, p.Forwards)

	if dist < PointSettleRadius {
		m.close = true
	}

	lat := m.lateral.Update(latErr)
	ang := 0.0
	if !m.close {
		ang = m.angular.Update(pose.RadToDeg(angErr))
		lat = clampDirection(lat, p.Forwards)
	}

	lat, ang = ApplySpeedConstraints(lat, ang, p.MaxSpeed, p.MinSpeed)

	finished := m.exit.ShouldExit(dist, nil)
	if !finished && p.EarlyExitRange > 0 && dist <= p.EarlyExitRange {
		finished = true
	}
	return lat, ang, finished
}

func (m *Motion) poseMetric(cur pose.Pose) float64 {
	headErr := math.Abs(AngleError(cur.Theta, m.pose.Target.Theta))
	return cur.DistanceTo(m.pose.Target) + pose.RadToDeg(headErr)*m.pose.HeadingWeight
}

func (m *Motion) updatePose(cur pose.Pose) (float64, float64, bool) {
	p := m.pose
	dist := cur.DistanceTo(p.Target)

	if dist < PoseSettleRadius {
		m.close = true
	}
	if dist < FinalTurnRadius {
		m.finalTurn = true
	}

	var lat, ang float64
	if m.finalTurn {
		headErr := AngleError(cur.Theta, p.Target.Theta)
		_, latErr := steer(cur, p.Target, p.Forwards)
		ang = m.angular.Update(pose.RadToDeg(headErr))
		lat = m.lateral.Update(latErr * 0.1)
		m.carrot, m.hasCarrot = p.Target, true
	} else {
		lat, ang = m.boomerang(cur)
	}

	lat, ang = ApplySpeedConstraints(lat, ang, p.MaxSpeed, p.MinSpeed)

	metric := m.poseMetric(cur)
	finished := m.exit.ShouldExit(metric, nil)
	if !finished && p.EarlyExitRange > 0 && metric <= p.EarlyExitRange {
		finished = true
	}
	return lat, ang, finished
}

// boomerang chases a carrot placed Lead of the remaining distance along
// the bearing to the target. Inside PoseSettleRadius the carrot is the
// target itself.
func (m *Motion) boomerang(cur pose.Pose) (float64, float64) {
	p := m.pose

	carrot := p.Target
	if !m.close {
		carrot = cur.Lerp(p.Target, p.Lead)
	}
	carrot.Theta = p.Target.Theta
	m.carrot, m.hasCarrot = carrot, true

	angErr, latErr := steer(cur, carrot, p.Forwards)

	drift := 0.0
	if !m.close {
		drift = p.HorizontalDrift * math.Abs(angErr) / math.Pi
	}

	lat := m.lateral.Update(latErr)
	ang := m.angular.Update(pose.RadToDeg(angErr)) + drift*sign(angErr)

	if !m.close {
		lat = clampDirection(lat, p.Forwards)
	}
	return lat, ang
}
