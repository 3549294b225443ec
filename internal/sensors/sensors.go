// Package sensors adapts rotation and inertial devices into the distance
// and heading readings consumed by odometry.
package sensors

import (
	"context"
	"errors"
	"math"
	"sync"
)

var (
	// ErrCalibrationFailed indicates the inertial sensor did not calibrate
	// within the allowed attempts.
	ErrCalibrationFailed = errors.New("sensors: inertial calibration failed")

	// ErrDisconnected is returned by simulated devices that are unplugged.
	ErrDisconnected = errors.New("sensors: device disconnected")
)

// RotationSensor reports cumulative shaft rotation in degrees.
type RotationSensor interface {
	Position() (float64, error)
}

// PositionResetter is implemented by rotation sensors that can zero their
// cumulative count.
type PositionResetter interface {
	ResetPosition() error
}

// InertialSensor reports cumulative heading in degrees, clockwise positive.
type InertialSensor interface {
	Rotation() (float64, error)
	Calibrate(ctx context.Context) error
}

// Common tracking wheel diameters, in inches.
const (
	Omni2    = 2.125
	Omni275  = 2.75
	Omni325  = 3.25
	Omni4    = 4.0
	OldOmni4 = 4.125
)

// TrackingWheel converts a rotation sensor into linear distance. Offset is
// the signed distance of the wheel from the rotational center: vertical
// wheels measure left/right of center, horizontal wheels front/back.
type TrackingWheel struct {
	sensor   RotationSensor
	diameter float64
	offset   float64
	ratio    float64

	mu   sync.Mutex
	last float64
}

// NewTrackingWheel builds a wheel. A ratio of 0 is treated as 1.
func NewTrackingWheel(sensor RotationSensor, diameter, offset, ratio float64) *TrackingWheel {
	if ratio == 0 {
		ratio = 1
	}
	return &TrackingWheel{
		sensor:   sensor,
		diameter: diameter,
		offset:   offset,
		ratio:    ratio,
	}
}

// Distance returns cumulative distance in the units of the diameter.
// A failed read returns the last good value.
func (w *TrackingWheel) Distance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	deg, err := w.sensor.Position()
	if err != nil || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return w.last
	}
	w.last = deg / 360 * math.Pi * w.diameter / w.ratio
	return w.last
}

func (w *TrackingWheel) Offset() float64   { return w.offset }
func (w *TrackingWheel) Diameter() float64 { return w.diameter }
func (w *TrackingWheel) Ratio() float64    { return w.ratio }

// Reset zeroes the wheel. Sensors that cannot be zeroed keep their count
// and only the cached value is cleared.
func (w *TrackingWheel) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.last = 0
	if r, ok := w.sensor.(PositionResetter); ok {
		return r.ResetPosition()
	}
	return nil
}

// Heading wraps an inertial sensor and reports cumulative heading in
// radians. A failed read returns the last good heading.
type Heading struct {
	imu InertialSensor

	mu   sync.Mutex
	last float64
}

func NewHeading(imu InertialSensor) *Heading {
	return &Heading{imu: imu}
}

func (h *Heading) Radians() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	deg, err := h.imu.Rotation()
	if err != nil || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return h.last
	}
	h.last = deg * math.Pi / 180
	return h.last
}
