// Package metrics scores motions from the control steps the chassis
// reports.
package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/dynodom/internal/chassis"
)

type Metric interface {
	Name() string
	Observe(s chassis.Step)
	Value() float64
	Reset()
}

// Set fans chassis steps out to its metrics. It is a chassis.Observer and
// is safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewSet(ms ...Metric) *Set {
	return &Set{metrics: ms}
}

// Standard returns the metrics recorded with every stored run.
func Standard(maxVoltage float64) *Set {
	return NewSet(
		NewControlEffort(),
		NewEnergy(chassis.DefaultTick.Seconds()),
		NewSaturation(maxVoltage),
		NewReversals(),
		NewPeakError(),
	)
}

func (s *Set) OnStep(step chassis.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Observe(step)
	}
}

func (s *Set) Values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Reset()
	}
}

// ControlEffort is the mean absolute voltage commanded per side.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s chassis.Step) {
	c.sum += (math.Abs(s.Left) + math.Abs(s.Right)) / 2
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// Energy integrates squared voltage over time, a proxy for the electrical
// energy spent on a motion.
type Energy struct {
	dt  float64
	sum float64
}

func NewEnergy(dt float64) *Energy { return &Energy{dt: dt} }

func (e *Energy) Name() string { return "energy" }

func (e *Energy) Observe(s chassis.Step) {
	e.sum += (s.Left*s.Left + s.Right*s.Right) * e.dt
}

func (e *Energy) Value() float64 { return e.sum }
func (e *Energy) Reset()         { e.sum = 0 }

// Saturation is the fraction of steps where either side was commanded at
// full voltage.
type Saturation struct {
	limit     float64
	saturated int
	samples   int
}

func NewSaturation(maxVoltage float64) *Saturation {
	if maxVoltage <= 0 {
		maxVoltage = chassis.DefaultMaxVoltage
	}
	return &Saturation{limit: maxVoltage}
}

func (s *Saturation) Name() string { return "saturation" }

func (s *Saturation) Observe(step chassis.Step) {
	s.samples++
	if math.Max(math.Abs(step.Left), math.Abs(step.Right)) >= s.limit-1e-9 {
		s.saturated++
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.samples)
}

func (s *Saturation) Reset() {
	s.saturated = 0
	s.samples = 0
}

// Reversals counts sign changes of the lateral output, a measure of
// hunting around the target.
type Reversals struct {
	count int
	last  float64
}

func NewReversals() *Reversals { return &Reversals{} }

func (r *Reversals) Name() string { return "reversals" }

func (r *Reversals) Observe(s chassis.Step) {
	if s.Lateral == 0 {
		return
	}
	if r.last != 0 && math.Signbit(s.Lateral) != math.Signbit(r.last) {
		r.count++
	}
	r.last = s.Lateral
}

func (r *Reversals) Value() float64 { return float64(r.count) }

func (r *Reversals) Reset() {
	r.count = 0
	r.last = 0
}

// PeakError is the largest exit metric seen.
type PeakError struct {
	peak float64
}

func NewPeakError() *PeakError { return &PeakError{} }

func (p *PeakError) Name() string           { return "peak_error" }
func (p *PeakError) Observe(s chassis.Step) { p.peak = math.Max(p.peak, s.Error) }
func (p *PeakError) Value() float64         { return p.peak }
func (p *PeakError) Reset()                 { p.peak = 0 }
