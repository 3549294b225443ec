package motion

import (
	"math"

	"github.com/san-kum/dynodom/internal/pose"
)

// AngleError returns target - current wrapped into [-π, π].
func AngleError(current, target float64) float64 {
	return pose.NormalizeAngle(target - current)
}

// ApplySpeedConstraints scales both outputs down so neither exceeds
// maxSpeed, then raises non-zero outputs below minSpeed up to minSpeed
// keeping their sign.
func ApplySpeedConstraints(lateral, angular, maxSpeed, minSpeed float64) (float64, float64) {
	if m := math.Max(math.Abs(lateral), math.Abs(angular)); m > maxSpeed {
		scale := maxSpeed / m
		lateral *= scale
		angular *= scale
	}
	if minSpeed > 0 {
		lateral = raise(lateral, minSpeed)
		angular = raise(angular, minSpeed)
	}
	return lateral, angular
}

func raise(v, floor float64) float64 {
	if v != 0 && math.Abs(v) < floor {
		return math.Copysign(floor, v)
	}
	return v
}

// DifferentialDrive converts body velocities into wheel velocities.
func DifferentialDrive(lateral, angular, trackWidth float64) (left, right float64) {
	half := angular * trackWidth / 2
	return lateral + half, lateral - half
}

// InverseDifferentialDrive converts wheel velocities into body velocities.
func InverseDifferentialDrive(left, right, trackWidth float64) (lateral, angular float64) {
	return (left + right) / 2, (left - right) / trackWidth
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
