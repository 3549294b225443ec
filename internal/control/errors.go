package control

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidGains indicates a non-finite gain or limit.
	ErrInvalidGains = errors.New("control: gains must be finite")

	// ErrInvalidExit indicates a negative or non-finite exit threshold or
	// duration.
	ErrInvalidExit = errors.New("control: invalid exit condition")

	// ErrUnknownParam is returned when tuning a parameter a PID does not have.
	ErrUnknownParam = errors.New("control: unknown parameter")
)

// ValidateGains reports ErrInvalidGains when any gain is NaN or Inf.
func ValidateGains(g Gains) error {
	for _, v := range []float64{g.Kp, g.Ki, g.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidGains
		}
	}
	return nil
}

// ValidateExit checks every threshold is finite and non-negative and no
// duration is negative.
func ValidateExit(e ExitConditions) error {
	conds := map[string]*ExitCondition{"small": &e.Small, "large": &e.Large, "velocity": e.Velocity}
	for name, c := range conds {
		if c == nil {
			continue
		}
		if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) || c.Threshold < 0 {
			return fmt.Errorf("%w: %s threshold %v", ErrInvalidExit, name, c.Threshold)
		}
		if c.Settle < 0 || c.MaxWait < 0 {
			return fmt.Errorf("%w: %s has a negative duration", ErrInvalidExit, name)
		}
	}
	return nil
}
