package odom

import (
	"math"

	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/sensors"
)

// Update runs one fusion tick. Without configured devices it does nothing.
func (e *Engine) Update() {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.st
	if st == nil || st.sensors.Empty() {
		return
	}
	s := st.sensors

	cur := sample{
		v1: distance(s.Vertical1),
		v2: distance(s.Vertical2),
		h1: distance(s.Horizontal1),
		h2: distance(s.Horizontal2),
	}
	if st.heading != nil {
		cur.imu = st.heading.Radians()
	} else {
		cur.imu = st.prev.imu
	}

	d := sample{
		v1:  cur.v1 - st.prev.v1,
		v2:  cur.v2 - st.prev.v2,
		h1:  cur.h1 - st.prev.h1,
		h2:  cur.h2 - st.prev.h2,
		imu: cur.imu - st.prev.imu,
	}
	st.prev = cur

	dTheta, src := headingDelta(s, d)
	st.source = src

	dy, vOff := axisDelta(s.Vertical1, s.Vertical2, d.v1, d.v2)
	dx, hOff := axisDelta(s.Horizontal1, s.Horizontal2, d.h1, d.h2)

	lx, ly := LocalDisplacement(dTheta, dx, dy, hOff, vOff)

	prev := st.pose
	avg := prev.Theta + dTheta/2
	gx, gy := toGlobal(lx, ly, avg)

	st.pose = pose.New(prev.X+gx, prev.Y+gy, prev.Theta+dTheta)

	dt := AssumedTick.Seconds()
	st.speed = pose.New(
		EMA((st.pose.X-prev.X)/dt, st.speed.X, SpeedAlpha),
		EMA((st.pose.Y-prev.Y)/dt, st.speed.Y, SpeedAlpha),
		EMA(dTheta/dt, st.speed.Theta, SpeedAlpha),
	)
	st.local = pose.New(
		EMA(lx/dt, st.local.X, SpeedAlpha),
		EMA(ly/dt, st.local.Y, SpeedAlpha),
		EMA(dTheta/dt, st.local.Theta, SpeedAlpha),
	)
	st.updates++
}

func distance(w *sensors.TrackingWheel) float64 {
	if w == nil {
		return 0
	}
	return w.Distance()
}

// headingDelta picks exactly one heading source: a horizontal pair, then a
// vertical pair, then the inertial sensor. Pairs mounted at the same
// offset cannot resolve rotation and are skipped.
func headingDelta(s Sensors, d sample) (float64, HeadingSource) {
	if dt, ok := pairDelta(s.Horizontal1, s.Horizontal2, d.h1, d.h2); ok {
		return dt, HeadingHorizontalPair
	}
	if dt, ok := pairDelta(s.Vertical1, s.Vertical2, d.v1, d.v2); ok {
		return dt, HeadingVerticalPair
	}
	if s.Inertial != nil {
		return d.imu, HeadingInertial
	}
	return 0, HeadingNone
}

func pairDelta(a, b *sensors.TrackingWheel, da, db float64) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	span := a.Offset() - b.Offset()
	if span == 0 {
		return 0, false
	}
	return -(da - db) / span, true
}

// axisDelta returns the delta and offset of the first available wheel.
func axisDelta(a, b *sensors.TrackingWheel, da, db float64) (float64, float64) {
	switch {
	case a != nil:
		return da, a.Offset()
	case b != nil:
		return db, b.Offset()
	default:
		return 0, 0
	}
}

// LocalDisplacement converts raw horizontal (dx) and vertical (dy) wheel
// deltas into robot-frame displacement, correcting for each wheel's
// offset from the center of rotation. Near-zero rotation uses the raw
// deltas.
func LocalDisplacement(dTheta, dx, dy, xOffset, yOffset float64) (float64, float64) {
	if math.Abs(dTheta) < Epsilon {
		return dx, dy
	}
	chord := 2 * math.Sin(dTheta/2)
	return chord * (dx/dTheta + xOffset), chord * (dy/dTheta + yOffset)
}

// toGlobal rotates a robot-frame displacement into the field frame at
// heading theta.
func toGlobal(lx, ly, theta float64) (float64, float64) {
	sin, cos := math.Sincos(theta)
	return ly*sin - lx*cos, ly*cos + lx*sin
}

// EMA is an exponential moving average step.
func EMA(in, prev, alpha float64) float64 {
	return alpha*in + (1-alpha)*prev
}
