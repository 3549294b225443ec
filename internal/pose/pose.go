package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Pose is a planar position and heading. Theta is in radians unless a
// caller explicitly converts it with Degrees.
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

func New(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: theta}
}

func (p Pose) vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

func fromVec(v r2.Vec, theta float64) Pose {
	return Pose{X: v.X, Y: v.Y, Theta: theta}
}

func (p Pose) Add(o Pose) Pose {
	return fromVec(r2.Add(p.vec(), o.vec()), p.Theta+o.Theta)
}

func (p Pose) Sub(o Pose) Pose {
	return fromVec(r2.Sub(p.vec(), o.vec()), p.Theta-o.Theta)
}

func (p Pose) Scale(k float64) Pose {
	return fromVec(r2.Scale(k, p.vec()), p.Theta*k)
}

// Div divides every component by k. Division by zero follows IEEE rules.
func (p Pose) Div(k float64) Pose {
	return Pose{X: p.X / k, Y: p.Y / k, Theta: p.Theta / k}
}

// DistanceTo returns the Euclidean distance between the two positions.
func (p Pose) DistanceTo(o Pose) float64 {
	return r2.Norm(r2.Sub(o.vec(), p.vec()))
}

// AngleTo returns atan2(dy, dx) from p to o. Identical points yield 0.
func (p Pose) AngleTo(o Pose) float64 {
	return math.Atan2(o.Y-p.Y, o.X-p.X)
}

// RotateBy rotates the position about the origin. Theta is kept.
func (p Pose) RotateBy(angle float64) Pose {
	return fromVec(r2.Rotate(p.vec(), angle, r2.Vec{}), p.Theta)
}

// Lerp interpolates the position toward o by t. The heading of p is kept
// as is; callers wanting a blended heading must interpolate it themselves.
func (p Pose) Lerp(o Pose, t float64) Pose {
	d := r2.Sub(o.vec(), p.vec())
	return fromVec(r2.Add(p.vec(), r2.Scale(t, d)), p.Theta)
}

func (p Pose) IsFinite() bool {
	return finite(p.X) && finite(p.Y) && finite(p.Theta)
}

// Degrees returns p with theta converted from radians to degrees.
func (p Pose) Degrees() Pose {
	return Pose{X: p.X, Y: p.Y, Theta: RadToDeg(p.Theta)}
}

// Radians returns p with theta converted from degrees to radians.
func (p Pose) Radians() Pose {
	return Pose{X: p.X, Y: p.Y, Theta: DegToRad(p.Theta)}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.4f)", p.X, p.Y, p.Theta)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
