package pose

import "math"

func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeAngle wraps a into [-π, π].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	return math.Remainder(a, 2*math.Pi)
}

// Heading converts a math-convention bearing (0 along +X, counter-clockwise
// positive) into the compass frame used by odometry (0 along +Y, clockwise
// positive).
func Heading(bearing float64) float64 {
	return NormalizeAngle(math.Pi/2 - bearing)
}
