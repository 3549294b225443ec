package sim

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/sensors"
)

// Axis is the direction a tracking wheel rolls in.
type Axis string

const (
	Vertical   Axis = "vertical"
	Horizontal Axis = "horizontal"
)

// Mount places a tracking wheel. Vertical wheel offsets are positive to
// the right of the rotational center, horizontal offsets positive toward
// the front.
type Mount struct {
	Axis     Axis    `yaml:"axis"`
	Offset   float64 `yaml:"offset"`
	Diameter float64 `yaml:"diameter"`
	Ratio    float64 `yaml:"ratio,omitempty"`
}

// Layout is the odometry sensor set of the simulated robot. Only the first
// two wheels of each axis are handed to odometry.
type Layout struct {
	Wheels   []Mount `yaml:"wheels"`
	Inertial bool    `yaml:"inertial"`
}

type Config struct {
	TrackWidth    float64       `yaml:"track_width"`
	WheelDiameter float64       `yaml:"wheel_diameter"`
	MaxSpeed      float64       `yaml:"max_speed"`
	MaxVoltage    float64       `yaml:"max_voltage"`
	MotorLag      time.Duration `yaml:"motor_lag"`
	Step          time.Duration `yaml:"step"`
	Integrator    string        `yaml:"integrator"`

	WheelNoise          float64 `yaml:"wheel_noise"`
	IMUDrift            float64 `yaml:"imu_drift"`
	CalibrationFailures int     `yaml:"calibration_failures"`
	Seed                int64   `yaml:"seed"`

	Start  pose.Pose `yaml:"start"`
	Layout Layout    `yaml:"layout"`
}

const (
	DefaultTrackWidth = 12.0
	DefaultMaxSpeed   = 60.0
	DefaultMotorLag   = 40 * time.Millisecond
	DefaultStep       = time.Millisecond
)

// DefaultConfig is a 12 inch wide drivetrain with one vertical and one
// horizontal tracking wheel plus an inertial sensor.
func DefaultConfig() Config {
	return Config{
		TrackWidth:    DefaultTrackWidth,
		WheelDiameter: sensors.Omni325,
		MaxSpeed:      DefaultMaxSpeed,
		MaxVoltage:    12,
		MotorLag:      DefaultMotorLag,
		Step:          DefaultStep,
		Integrator:    "rk4",
		Seed:          1,
		Layout: Layout{
			Wheels: []Mount{
				{Axis: Vertical, Offset: -0.5, Diameter: sensors.Omni275},
				{Axis: Horizontal, Offset: 2, Diameter: sensors.Omni275},
			},
			Inertial: true,
		},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if c.TrackWidth <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim: track width must be positive, got %f", c.TrackWidth))
	}
	if c.MaxSpeed <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim: max speed must be positive, got %f", c.MaxSpeed))
	}
	if c.MaxVoltage <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim: max voltage must be positive, got %f", c.MaxVoltage))
	}
	if c.MotorLag < 0 {
		err = multierr.Append(err, fmt.Errorf("sim: motor lag must not be negative, got %s", c.MotorLag))
	}
	if c.Step <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim: step must be positive, got %s", c.Step))
	}
	if c.WheelNoise < 0 {
		err = multierr.Append(err, fmt.Errorf("sim: wheel noise must not be negative, got %f", c.WheelNoise))
	}
	if !c.Start.IsFinite() {
		err = multierr.Append(err, fmt.Errorf("sim: start pose %v is not finite", c.Start))
	}
	if len(c.Layout.Wheels) == 0 && !c.Layout.Inertial {
		err = multierr.Append(err, fmt.Errorf("sim: layout has no sensors"))
	}
	for i, m := range c.Layout.Wheels {
		if m.Axis != Vertical && m.Axis != Horizontal {
			err = multierr.Append(err, fmt.Errorf("sim: wheel %d: unknown axis %q", i, m.Axis))
		}
		if m.Diameter <= 0 {
			err = multierr.Append(err, fmt.Errorf("sim: wheel %d: diameter must be positive, got %f", i, m.Diameter))
		}
		if m.Ratio < 0 {
			err = multierr.Append(err, fmt.Errorf("sim: wheel %d: ratio must not be negative, got %f", i, m.Ratio))
		}
	}
	if _, ierr := NewIntegrator(c.Integrator); ierr != nil {
		err = multierr.Append(err, ierr)
	}
	return err
}
