package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/odom"
	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/sensors"
	"github.com/san-kum/dynodom/internal/scheduler"
	"github.com/san-kum/dynodom/internal/sim"
)

const (
	fieldWidth  = 48
	fieldHeight = 18
	trailLen    = 600
	historyLen  = 200
	frameRate   = 30
)

// Feed collects chassis steps and the outcome of a route for the live
// view. It is a chassis.Observer.
type Feed struct {
	mu      sync.Mutex
	step    chassis.Step
	hasStep bool
	done    bool
	reports []chassis.Report
	err     error
}

func NewFeed() *Feed { return &Feed{} }

func (f *Feed) OnStep(s chassis.Step) {
	f.mu.Lock()
	f.step, f.hasStep = s, true
	f.mu.Unlock()
}

// Finish records the route result.
func (f *Feed) Finish(reports []chassis.Report, err error) {
	f.mu.Lock()
	f.done, f.reports, f.err = true, reports, err
	f.mu.Unlock()
}

func (f *Feed) snapshot() (chassis.Step, bool, bool, []chassis.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step, f.hasStep, f.done, f.reports, f.err
}

// Live is the source of a live view. Odometry is read through Chassis.
type Live struct {
	Robot     *sim.Robot
	Chassis   *chassis.Chassis
	Scheduler *scheduler.Scheduler
	Feed      *Feed
	Route     []sim.Waypoint
	Cancel    context.CancelFunc
}

type frameMsg time.Time

func frame() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return frameMsg(t) })
}

type liveModel struct {
	src Live

	truth    []pose.Pose
	estimate []pose.Pose
	errors   []float64
	volts    []float64

	step    chassis.Step
	hasStep bool
	done    bool
	reports []chassis.Report
	err     error
	status  string
}

func NewLiveModel(src Live) tea.Model {
	return liveModel{
		src:      src,
		truth:    make([]pose.Pose, 0, trailLen),
		estimate: make([]pose.Pose, 0, trailLen),
		errors:   make([]float64, 0, historyLen),
		volts:    make([]float64, 0, historyLen),
	}
}

func (m liveModel) Init() tea.Cmd { return frame() }

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)
	case frameMsg:
		m.sample()
		return m, frame()
	}
	return m, nil
}

func (m liveModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sched := m.src.Scheduler
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		if m.src.Cancel != nil {
			m.src.Cancel()
		}
		return m, tea.Quit
	case " ", "p":
		var err error
		if sched.Stats().Paused {
			err = sched.Resume()
		} else {
			err = sched.Pause()
		}
		m.setStatus(err, "odometry toggled")
	case "+", "=":
		m.setStatus(m.retune(2), "odometry frequency raised")
	case "-", "_":
		m.setStatus(m.retune(0.5), "odometry frequency lowered")
	case "[":
		m.setStatus(m.scaleGain("lateral.Kp", 0.9), "lateral kp lowered")
	case "]":
		m.setStatus(m.scaleGain("lateral.Kp", 1.1), "lateral kp raised")
	case "{":
		m.setStatus(m.scaleGain("angular.Kp", 0.9), "angular kp lowered")
	case "}":
		m.setStatus(m.scaleGain("angular.Kp", 1.1), "angular kp raised")
	}
	return m, nil
}

func (m *liveModel) setStatus(err error, ok string) {
	if err != nil {
		m.status = red.Render(err.Error())
		return
	}
	m.status = dim.Render(ok)
}

func (m liveModel) retune(factor float64) error {
	cfg := m.src.Scheduler.Config()
	hz := int(float64(cfg.FrequencyHz) * factor)
	cfg.FrequencyHz = min(max(hz, scheduler.MinFrequencyHz), scheduler.MaxFrequencyHz)
	return m.src.Scheduler.UpdateConfig(cfg)
}

func (m liveModel) scaleGain(name string, factor float64) error {
	v, ok := m.src.Chassis.Gains()[name]
	if !ok {
		return chassis.ErrIdle
	}
	return m.src.Chassis.Tune(name, v*factor)
}

func (m liveModel) engine() *odom.Engine { return m.src.Chassis.Odometry() }

func (m *liveModel) sample() {
	m.truth = appendCapped(m.truth, m.src.Robot.Pose(), trailLen)
	m.estimate = appendCapped(m.estimate, m.engine().Pose(true), trailLen)

	m.step, m.hasStep, m.done, m.reports, m.err = m.src.Feed.snapshot()
	if m.hasStep && !m.done {
		m.errors = appendCapped(m.errors, m.step.Error, historyLen)
		m.volts = appendCapped(m.volts, (m.step.Left+m.step.Right)/2, historyLen)
	}
}

func appendCapped[T any](s []T, v T, limit int) []T {
	if len(s) >= limit {
		copy(s, s[1:])
		s = s[:len(s)-1]
	}
	return append(s, v)
}

func (m liveModel) View() string {
	field := m.field()
	stats := panel.Render(m.stats())
	body := lipgloss.JoinHorizontal(lipgloss.Top, field, stats)

	var b strings.Builder
	b.WriteString("\n  " + cyan.Render("d y n o d o m") + dim.Render("  live") + "\n\n")
	b.WriteString(body + "\n")
	if len(m.errors) > 1 {
		b.WriteString("\n" + asciigraph.Plot(m.errors,
			asciigraph.Height(6),
			asciigraph.Width(fieldWidth+40),
			asciigraph.Caption("motion error"),
		) + "\n")
	}
	if m.done {
		b.WriteString("\n" + Summary(m.reports))
		if m.err != nil {
			b.WriteString(red.Render("  "+m.err.Error()) + "\n")
		}
	}
	if m.status != "" {
		b.WriteString("\n  " + m.status + "\n")
	}
	b.WriteString("\n" + dim.Render("  space pause odometry   +/- frequency   [/] {/} kp   q quit") + "\n")
	return b.String()
}

func (m liveModel) field() string {
	f := NewField(fieldWidth, fieldHeight, -12, -12, 12, 12)
	f.Fit(6, m.truth...)
	f.Fit(6, m.estimate...)
	for _, w := range m.src.Route {
		f.Fit(6, pose.New(w.X, w.Y, 0))
	}

	for _, w := range m.src.Route {
		f.Target(w.X, w.Y, 1)
	}
	f.Path(m.truth)
	f.Path(m.estimate)
	if n := len(m.truth); n > 0 {
		f.Robot(m.truth[n-1], 4)
	}
	return lipgloss.NewStyle().Padding(0, 2).Render(cyan.Render(f.String()))
}

func (m liveModel) stats() string {
	var b strings.Builder
	row := func(name, value string) {
		b.WriteString(label.Render(name) + value + "\n")
	}

	var truth, est pose.Pose
	if n := len(m.truth); n > 0 {
		truth, est = m.truth[n-1], m.estimate[n-1]
	}
	row("truth", white.Render(truth.Degrees().String()))
	row("estimate", white.Render(est.Degrees().String()))
	row("drift", magenta.Render(fmt.Sprintf("%.3f in", est.DistanceTo(truth))))
	row("heading", dim.Render(m.engine().HeadingSource().String()))
	if s, ok := m.engine().Sensors(); ok {
		for _, w := range wheels(s) {
			row(w.name, dim.Render(fmt.Sprintf("%.2f in x%.2f %+.2f", w.Diameter(), w.Ratio(), w.Offset())))
		}
	}
	b.WriteString("\n")

	st := m.src.Scheduler.Stats()
	state := green.Render("running")
	switch {
	case st.Paused:
		state = yellow.Render("paused")
	case !st.Running:
		state = red.Render("stopped")
	}
	row("odometry", state+dim.Render(fmt.Sprintf(" %d Hz", m.src.Scheduler.Config().FrequencyHz)))
	row("updates", white.Render(fmt.Sprintf("%d", st.UpdatesCompleted)))
	row("avg tick", white.Render(st.AverageUpdateTime().String()))
	row("late", white.Render(fmt.Sprintf("%d", st.JitterViolations)))
	b.WriteString("\n")

	if m.hasStep {
		s := m.step
		row("motion", white.Render(fmt.Sprintf("%s %d/%d", s.Kind, len(m.reports)+1, len(m.src.Route))))
		row("elapsed", white.Render(s.Elapsed.Round(10*time.Millisecond).String()))
		row("error", magenta.Render(fmt.Sprintf("%.3f", s.Error)))
		row("volts", white.Render(fmt.Sprintf("%+6.2f %+6.2f", s.Left, s.Right)))
		row("", cyan.Render(Sparkline(m.volts, 30)))
	}
	if g := m.src.Chassis.Gains(); len(g) > 0 {
		row("lateral kp", yellow.Render(fmt.Sprintf("%.3f", g["lateral.Kp"])))
		row("angular kp", yellow.Render(fmt.Sprintf("%.3f", g["angular.Kp"])))
	}
	if m.done {
		row("route", green.Render("finished"))
	}
	return b.String()
}

type namedWheel struct {
	name string
	*sensors.TrackingWheel
}

func wheels(s odom.Sensors) []namedWheel {
	var out []namedWheel
	for _, w := range []namedWheel{
		{"vertical 1", s.Vertical1},
		{"vertical 2", s.Vertical2},
		{"horizontal 1", s.Horizontal1},
		{"horizontal 2", s.Horizontal2},
	} {
		if w.TrackingWheel != nil {
			out = append(out, w)
		}
	}
	return out
}

// RunLive runs the live view until the user quits.
func RunLive(src Live, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewLiveModel(src), opts...).Run()
	return err
}
