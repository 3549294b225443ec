// Package odom fuses tracking wheel and inertial deltas into a global pose.
//
// The frame is compass-style: theta 0 faces +Y and positive theta turns
// clockwise. A vertical wheel moving forward while theta is 0 increases Y.
//
// # Thread Safety
//
// [Engine] is safe for concurrent use. Update holds the write lock for the
// entire fusion tick so readers never see a partially integrated pose.
package odom

import (
	"sync"
	"time"

	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/sensors"
)

const (
	// SpeedAlpha is the EMA weight applied to new speed samples.
	SpeedAlpha = 0.95

	// AssumedTick is the update period used to turn deltas into speeds.
	AssumedTick = 10 * time.Millisecond

	// Epsilon is the heading delta below which motion is treated as a
	// straight line.
	Epsilon = 1e-12
)

// Sensors is the set of devices odometry reads from. Any field may be nil.
type Sensors struct {
	Vertical1   *sensors.TrackingWheel
	Vertical2   *sensors.TrackingWheel
	Horizontal1 *sensors.TrackingWheel
	Horizontal2 *sensors.TrackingWheel
	Inertial    sensors.InertialSensor
}

// Reset zeroes every configured tracking wheel.
func (s Sensors) Reset() error {
	for _, w := range s.wheels() {
		if w == nil {
			continue
		}
		if err := w.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether no device is configured.
func (s Sensors) Empty() bool {
	return s.Vertical1 == nil && s.Vertical2 == nil &&
		s.Horizontal1 == nil && s.Horizontal2 == nil && s.Inertial == nil
}

func (s Sensors) wheels() []*sensors.TrackingWheel {
	return []*sensors.TrackingWheel{s.Vertical1, s.Vertical2, s.Horizontal1, s.Horizontal2}
}

// HeadingSource identifies which device produced the heading delta.
type HeadingSource int

const (
	HeadingNone HeadingSource = iota
	HeadingHorizontalPair
	HeadingVerticalPair
	HeadingInertial
)

func (h HeadingSource) String() string {
	switch h {
	case HeadingHorizontalPair:
		return "horizontal-pair"
	case HeadingVerticalPair:
		return "vertical-pair"
	case HeadingInertial:
		return "inertial"
	default:
		return "none"
	}
}

type sample struct {
	v1, v2, h1, h2 float64
	imu            float64
}

type state struct {
	sensors Sensors
	heading *sensors.Heading
	pose    pose.Pose
	speed   pose.Pose
	local   pose.Pose
	prev    sample
	source  HeadingSource
	updates uint64
}

// Engine owns the single odometry state shared between the update loop
// and motion controllers.
type Engine struct {
	mu sync.RWMutex
	st *state
}

func New() *Engine {
	return &Engine{}
}

// Configure replaces the sensor set and clears pose, speeds and previous
// samples. Wheels should already be zeroed, see [Sensors.Reset].
func (e *Engine) Configure(s Sensors) {
	st := &state{sensors: s}
	if s.Inertial != nil {
		st.heading = sensors.NewHeading(s.Inertial)
	}

	e.mu.Lock()
	e.st = st
	e.mu.Unlock()
}

// Configured reports whether at least one device has been configured.
func (e *Engine) Configured() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st != nil && !e.st.sensors.Empty()
}

// Sensors returns the configured sensor set.
func (e *Engine) Sensors() (Sensors, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return Sensors{}, false
	}
	return e.st.sensors, true
}

func (e *Engine) Pose(radians bool) pose.Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return pose.Pose{}
	}
	return unit(e.st.pose, radians)
}

// SetPose overwrites the current pose. It is ignored until sensors are
// configured.
func (e *Engine) SetPose(p pose.Pose, radians bool) {
	if !radians {
		p = p.Radians()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != nil {
		e.st.pose = p
	}
}

// Speed returns the smoothed field-frame velocity per second.
func (e *Engine) Speed(radians bool) pose.Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return pose.Pose{}
	}
	return unit(e.st.speed, radians)
}

// LocalSpeed returns the smoothed robot-frame velocity per second.
func (e *Engine) LocalSpeed(radians bool) pose.Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return pose.Pose{}
	}
	return unit(e.st.local, radians)
}

// EstimatePose projects the current pose dt seconds ahead assuming the
// local speed stays constant.
func (e *Engine) EstimatePose(dt float64, radians bool) pose.Pose {
	e.mu.RLock()
	if e.st == nil {
		e.mu.RUnlock()
		return pose.Pose{}
	}
	cur, local := e.st.pose, e.st.local
	e.mu.RUnlock()

	delta := local.Scale(dt)
	avg := cur.Theta + delta.Theta/2
	dx, dy := toGlobal(delta.X, delta.Y, avg)

	future := pose.New(cur.X+dx, cur.Y+dy, cur.Theta)
	return unit(future, radians)
}

// HeadingSource reports the source used by the most recent update.
func (e *Engine) HeadingSource() HeadingSource {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return HeadingNone
	}
	return e.st.source
}

// Updates returns the number of fusion ticks since Configure.
func (e *Engine) Updates() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return 0
	}
	return e.st.updates
}

func unit(p pose.Pose, radians bool) pose.Pose {
	if radians {
		return p
	}
	return p.Degrees()
}
