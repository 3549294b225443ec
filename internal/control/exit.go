package control

import (
	"math"
	"time"
)

type ExitState int

const (
	NotMet ExitState = iota
	Met
	Timeout
)

func (s ExitState) String() string {
	switch s {
	case Met:
		return "met"
	case Timeout:
		return "timeout"
	default:
		return "not-met"
	}
}

// ExitCondition reports Met once a tracked value has stayed within
// Threshold for at least Settle. Leaving the threshold restarts the timer.
// With MaxWait > 0 the condition reports Timeout once it has been observed
// for longer than MaxWait without settling.
type ExitCondition struct {
	Threshold float64       `yaml:"threshold"`
	Settle    time.Duration `yaml:"settle"`
	MaxWait   time.Duration `yaml:"max_wait,omitempty"`

	seen      bool
	firstSeen time.Time
	inside    bool
	metSince  time.Time

	now func() time.Time
}

func NewExitCondition(threshold float64, settle time.Duration) ExitCondition {
	return ExitCondition{Threshold: threshold, Settle: settle}
}

func (c *ExitCondition) SetClock(now func() time.Time) { c.now = now }

func (c *ExitCondition) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *ExitCondition) Update(value float64) ExitState {
	now := c.clock()
	if !c.seen {
		c.seen = true
		c.firstSeen = now
	}

	if math.Abs(value) <= c.Threshold {
		if !c.inside {
			c.inside = true
			c.metSince = now
		}
		if now.Sub(c.metSince) >= c.Settle {
			return Met
		}
	} else {
		c.inside = false
	}

	if c.MaxWait > 0 && now.Sub(c.firstSeen) > c.MaxWait {
		return Timeout
	}
	return NotMet
}

func (c *ExitCondition) Reset() {
	c.seen = false
	c.inside = false
	c.firstSeen = time.Time{}
	c.metSince = time.Time{}
}

// ExitConditions ORs a small-error, a large-error and an optional velocity
// condition. Either a tight error held briefly or a loose error held longer
// ends a motion.
type ExitConditions struct {
	Small    ExitCondition  `yaml:"small"`
	Large    ExitCondition  `yaml:"large"`
	Velocity *ExitCondition `yaml:"velocity,omitempty"`
}

// DefaultExitConditions is 1.0 held for 100ms or 3.0 held for 500ms.
func DefaultExitConditions() ExitConditions {
	return ExitConditions{
		Small: NewExitCondition(1.0, 100*time.Millisecond),
		Large: NewExitCondition(3.0, 500*time.Millisecond),
	}
}

// WithVelocity returns a copy that also exits on low velocity.
func (e ExitConditions) WithVelocity(threshold float64, settle time.Duration) ExitConditions {
	v := NewExitCondition(threshold, settle)
	e.Velocity = &v
	return e
}

// Clone returns a deep copy so that timers are not shared between motions.
func (e ExitConditions) Clone() ExitConditions {
	if e.Velocity != nil {
		v := *e.Velocity
		e.Velocity = &v
	}
	return e
}

func (e *ExitConditions) SetClock(now func() time.Time) {
	e.Small.SetClock(now)
	e.Large.SetClock(now)
	if e.Velocity != nil {
		e.Velocity.SetClock(now)
	}
}

// ShouldExit updates every condition and reports whether any is Met.
// Velocity is only consulted when both a velocity condition and a
// velocity value are present.
func (e *ExitConditions) ShouldExit(err float64, velocity *float64) bool {
	small := e.Small.Update(err) == Met
	large := e.Large.Update(err) == Met
	vel := false
	if e.Velocity != nil && velocity != nil {
		vel = e.Velocity.Update(*velocity) == Met
	}
	return small || large || vel
}

// TimedOut reports whether the small or large condition has exceeded its
// MaxWait. It does not advance any timers.
func (e *ExitConditions) TimedOut() bool {
	now := e.Small.clock()
	return e.Small.expired(now) || e.Large.expired(now)
}

func (c *ExitCondition) expired(now time.Time) bool {
	return c.MaxWait > 0 && c.seen && now.Sub(c.firstSeen) > c.MaxWait
}

func (e *ExitConditions) Reset() {
	e.Small.Reset()
	e.Large.Reset()
	if e.Velocity != nil {
		e.Velocity.Reset()
	}
}
