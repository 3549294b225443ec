package chassis

import (
	"context"
	"math"
	"time"

	"github.com/san-kum/dynodom/internal/motion"
)

type BrakeMode int

const (
	Coast BrakeMode = iota
	Brake
	Hold
)

func (b BrakeMode) String() string {
	switch b {
	case Brake:
		return "brake"
	case Hold:
		return "hold"
	default:
		return "coast"
	}
}

// Actuator is a group of motors driven together.
type Actuator interface {
	MoveVoltage(volts float64)
	Brake(mode BrakeMode)
}

const (
	// SpeedCeiling is the magnitude of controller output mapped onto the
	// full actuator voltage.
	SpeedCeiling = 127.0

	DefaultMaxVoltage = 12.0
	DefaultTick       = 10 * time.Millisecond
)

type Drivetrain struct {
	Left          Actuator
	Right         Actuator
	TrackWidth    float64
	WheelDiameter float64
	MaxVoltage    float64
}

func (d Drivetrain) maxVoltage() float64 {
	if d.MaxVoltage <= 0 {
		return DefaultMaxVoltage
	}
	return d.MaxVoltage
}

// Volts maps a controller output in [-SpeedCeiling, SpeedCeiling] onto the
// actuator voltage range.
func (d Drivetrain) Volts(v float64) float64 {
	return v / SpeedCeiling * d.maxVoltage()
}

// Mix converts lateral and angular output into left and right commands,
// scaled so neither side exceeds ceiling.
func Mix(lateral, angular, ceiling float64) (left, right float64) {
	// A unit half-track makes the angular output the per-side differential.
	left, right = motion.DifferentialDrive(lateral, angular, 2)
	if m := math.Max(math.Abs(left), math.Abs(right)); m > ceiling {
		scale := ceiling / m
		left *= scale
		right *= scale
	}
	return left, right
}

// Pacer supplies the time base of the motion loop and yields between
// control ticks.
type Pacer interface {
	Now() time.Time
	Wait(ctx context.Context) error
}

// Realtime paces the loop against the wall clock.
type Realtime struct {
	Tick time.Duration
}

func (r Realtime) Now() time.Time { return time.Now() }

func (r Realtime) Wait(ctx context.Context) error {
	tick := r.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	t := time.NewTimer(tick)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
