// Package scheduler runs odometry updates on a fixed-frequency cycle with
// jitter monitoring and start/stop/pause/resume control.
//
// Commands are queued and applied by the loop at most once per cycle, so
// they take effect between fusion ticks, never during one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/dynodom/internal/log"
)

var (
	ErrSensorsNotConfigured = errors.New("scheduler: sensors must be configured before starting")
	ErrInvalidConfig        = errors.New("scheduler: invalid configuration")
	ErrAlreadyRunning       = errors.New("scheduler: already running")
	ErrNotRunning           = errors.New("scheduler: not running")
	ErrQueueFull            = errors.New("scheduler: command queue full")
)

// QueueSize is the capacity of the command queue.
const QueueSize = 8

// Target is the work performed each cycle. *odom.Engine satisfies it.
type Target interface {
	Update()
	Configured() bool
}

type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdStop
	CmdPause
	CmdResume
	CmdUpdateConfig
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdUpdateConfig:
		return "update-config"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is a queued state change. Config is only read for
// CmdUpdateConfig.
type Command struct {
	Kind   CommandKind
	Config Config
}

type Scheduler struct {
	target Target
	cmds   chan Command
	now    func() time.Time

	mu       sync.RWMutex
	cfg      Config
	stats    Stats
	deadline time.Time
}

type Option func(*Scheduler)

// WithClock replaces the time source used for deadlines and tick timing.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(target Target, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		target: target,
		cmds:   make(chan Command, QueueSize),
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send queues a command, blocking until there is room or ctx is done.
func (s *Scheduler) Send(ctx context.Context, cmd Command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) trySend(cmd Command) error {
	select {
	case s.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start queues a start command. It fails immediately when the target has
// no sensors or the scheduler is already running.
func (s *Scheduler) Start() error {
	if !s.target.Configured() {
		return ErrSensorsNotConfigured
	}
	if s.Stats().Running {
		return ErrAlreadyRunning
	}
	return s.trySend(Command{Kind: CmdStart})
}

func (s *Scheduler) Stop() error {
	if !s.Stats().Running {
		return ErrNotRunning
	}
	return s.trySend(Command{Kind: CmdStop})
}

func (s *Scheduler) Pause() error {
	if !s.Stats().Running {
		return ErrNotRunning
	}
	return s.trySend(Command{Kind: CmdPause})
}

func (s *Scheduler) Resume() error {
	if !s.Stats().Running {
		return ErrNotRunning
	}
	return s.trySend(Command{Kind: CmdResume})
}

// UpdateConfig validates cfg and queues it.
func (s *Scheduler) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.trySend(Command{Kind: CmdUpdateConfig, Config: cfg})
}

// Stats returns a snapshot copy.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Config returns a snapshot copy.
func (s *Scheduler) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Deadline returns the next scheduled update time.
func (s *Scheduler) Deadline() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deadline
}

// Run executes the loop until ctx is done. When AutoStart is set and the
// target is configured the scheduler starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Config().AutoStart && s.target.Configured() {
		s.apply(Command{Kind: CmdStart})
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			s.apply(Command{Kind: CmdStop})
			return ctx.Err()
		default:
		}

		s.poll()
		wait := s.cycle()
		if wait <= 0 {
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			s.apply(Command{Kind: CmdStop})
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// poll applies at most one pending command without blocking.
func (s *Scheduler) poll() {
	select {
	case cmd := <-s.cmds:
		s.apply(cmd)
	default:
	}
}

func (s *Scheduler) apply(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Kind {
	case CmdStart:
		if s.stats.Running {
			return
		}
		if !s.target.Configured() {
			log.Warn("scheduler start ignored", "err", ErrSensorsNotConfigured)
			return
		}
		s.stats.Running = true
		s.stats.Paused = false
		s.deadline = s.now()
		log.Info("odometry scheduler started", "hz", s.cfg.FrequencyHz)
	case CmdStop:
		if s.stats.Running {
			log.Info("odometry scheduler stopped", "updates", s.stats.UpdatesCompleted)
		}
		s.stats.Running = false
		s.stats.Paused = false
	case CmdPause:
		if s.stats.Running {
			s.stats.Paused = true
		}
	case CmdResume:
		if s.stats.Running && s.stats.Paused {
			s.stats.Paused = false
			s.deadline = s.now()
		}
	case CmdUpdateConfig:
		if err := cmd.Config.Validate(); err != nil {
			log.Warn("scheduler config rejected", "err", err)
			return
		}
		s.cfg = cmd.Config
		log.Debug("scheduler config updated", "hz", s.cfg.FrequencyHz, "max_jitter", s.cfg.MaxJitter)
	}
}

// cycle runs the target if it is due and returns how long to wait before
// the next cycle.
func (s *Scheduler) cycle() time.Duration {
	s.mu.RLock()
	active := s.stats.Running && !s.stats.Paused
	deadline := s.deadline
	cfg := s.cfg
	s.mu.RUnlock()

	if !active {
		return IdlePoll
	}

	start := s.now()
	if start.Before(deadline) {
		return deadline.Sub(start)
	}

	s.target.Update()
	end := s.now()

	interval := cfg.Interval()
	late := end.After(deadline.Add(cfg.MaxJitter))
	next := deadline.Add(interval)
	if late {
		next = end.Add(interval)
		log.Debug("odometry update late", "by", end.Sub(deadline), "tolerance", cfg.MaxJitter)
	}

	s.mu.Lock()
	s.stats = s.stats.record(end.Sub(start), late)
	s.deadline = next
	s.mu.Unlock()

	return next.Sub(end)
}
