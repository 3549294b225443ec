package sim

import (
	"context"
	"errors"
	"math"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/sensors"
)

var errNotSettled = errors.New("sim: inertial sensor still settling")

// Motor is one side of the simulated drivetrain.
type Motor struct {
	r    *Robot
	side int
}

// MoveVoltage clamps volts to the configured maximum.
func (m *Motor) MoveVoltage(volts float64) {
	limit := m.r.cfg.MaxVoltage
	m.r.mu.Lock()
	m.r.volts[m.side] = math.Max(-limit, math.Min(limit, volts))
	m.r.mu.Unlock()
}

func (m *Motor) Brake(mode chassis.BrakeMode) {
	m.r.mu.Lock()
	m.r.dyn.brake[m.side] = mode
	m.r.mu.Unlock()
}

func (m *Motor) Voltage() float64 {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return m.r.volts[m.side]
}

// Encoder is a rotation sensor on a simulated tracking wheel.
type Encoder struct {
	r     *Robot
	idx   int
	mount Mount

	zero         float64
	disconnected bool
}

func (e *Encoder) Mount() Mount { return e.mount }

// Position returns shaft rotation in degrees since the last reset.
func (e *Encoder) Position() (float64, error) {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	if e.disconnected {
		return 0, sensors.ErrDisconnected
	}
	ratio := e.mount.Ratio
	if ratio == 0 {
		ratio = 1
	}
	arc := e.r.x[iwheels+e.idx] - e.zero
	return arc / (math.Pi * e.mount.Diameter) * 360 * ratio, nil
}

func (e *Encoder) ResetPosition() error {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	if e.disconnected {
		return sensors.ErrDisconnected
	}
	e.zero = e.r.x[iwheels+e.idx]
	return nil
}

// SetConnected unplugs or reconnects the encoder.
func (e *Encoder) SetConnected(ok bool) {
	e.r.mu.Lock()
	e.disconnected = !ok
	e.r.mu.Unlock()
}

// IMU is a simulated inertial sensor. Its rotation is zeroed by a
// successful calibration and drifts linearly with simulated time.
type IMU struct {
	r *Robot

	failures     int
	calibrations int
	zero         float64
	driftFrom    float64
	disconnected bool
}

// Rotation returns heading in degrees, clockwise positive.
func (m *IMU) Rotation() (float64, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if m.disconnected {
		return 0, sensors.ErrDisconnected
	}
	drift := m.r.cfg.IMUDrift * (m.r.t - m.driftFrom)
	return pose.RadToDeg(m.r.x[itheta]-m.zero) + drift, nil
}

// Calibrate fails Config.CalibrationFailures times before succeeding.
func (m *IMU) Calibrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.r.mu.Lock()
	defer m.r.mu.Unlock()

	m.calibrations++
	if m.disconnected {
		return sensors.ErrDisconnected
	}
	if m.failures > 0 {
		m.failures--
		return errNotSettled
	}
	m.zero = m.r.x[itheta]
	m.driftFrom = m.r.t
	return nil
}

// Calibrations counts Calibrate calls.
func (m *IMU) Calibrations() int {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return m.calibrations
}

func (m *IMU) SetConnected(ok bool) {
	m.r.mu.Lock()
	m.disconnected = !ok
	m.r.mu.Unlock()
}
