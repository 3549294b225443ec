// Package config loads the YAML description of a simulated robot, its
// odometry schedule, motion tuning and the route to drive.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynodom/internal/control"
	"github.com/san-kum/dynodom/internal/motion"
	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/scheduler"
	"github.com/san-kum/dynodom/internal/sim"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultSlewRate = 1200.0
	DefaultRuns     = 1
	DefaultDataDir  = "./runs"
	DefaultLogLevel = "info"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Robot    sim.Config         `yaml:"robot"`
	Odometry scheduler.Config   `yaml:"odometry"`
	Point    motion.PointParams `yaml:"point"`
	Pose     motion.PoseParams  `yaml:"pose"`
	Route    []sim.Waypoint     `yaml:"route"`
	Timeout  time.Duration      `yaml:"timeout"`
	Runs     int                `yaml:"runs"`
	Workers  int                `yaml:"workers"`
	DataDir  string             `yaml:"data_dir"`
	LogLevel string             `yaml:"log_level"`
}

// DefaultConfig drives forward two feet and then curves into a pose facing
// right. Motion slew is raised well above the controller default so the
// simulated drivetrain can decelerate within a few ticks.
func DefaultConfig() *Config {
	pointParams := motion.DefaultPointParams()
	pointParams.SlewRate = DefaultSlewRate
	poseParams := motion.DefaultPoseParams()
	poseParams.SlewRate = DefaultSlewRate

	return &Config{
		Robot:    sim.DefaultConfig(),
		Odometry: scheduler.DefaultConfig(),
		Point:    pointParams,
		Pose:     poseParams,
		Route: []sim.Waypoint{
			{X: 0, Y: 24},
			{Pose: true, X: 24, Y: 48, Theta: 90},
		},
		Timeout:  DefaultTimeout,
		Runs:     DefaultRuns,
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
	}
}

// Load reads path over DefaultConfig, so omitted keys keep their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem at once. Each error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs error
	add := func(err error) {
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
		}
	}

	for _, err := range multierr.Errors(c.Robot.Validate()) {
		add(err)
	}
	add(c.Odometry.Validate())
	add(motion.NewPoint(c.Point).IsReady())
	add(motion.NewPose(c.Pose).IsReady())

	if len(c.Route) == 0 {
		add(errors.New("route is empty"))
	}
	for i, w := range c.Route {
		if !pose.New(w.X, w.Y, w.Theta).IsFinite() {
			add(fmt.Errorf("waypoint %d is not finite", i))
		}
		if w.Timeout < 0 {
			add(fmt.Errorf("waypoint %d: negative timeout %s", i, w.Timeout))
		}
	}
	if c.Timeout < 0 {
		add(fmt.Errorf("negative timeout %s", c.Timeout))
	}
	if c.Runs < 1 {
		add(fmt.Errorf("runs must be at least 1, got %d", c.Runs))
	}
	if c.Workers < 0 {
		add(fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	return errs
}

// Waypoints returns the route with the default timeout filled in.
func (c *Config) Waypoints() []sim.Waypoint {
	route := make([]sim.Waypoint, len(c.Route))
	for i, w := range c.Route {
		if w.Timeout == 0 {
			w.Timeout = c.Timeout
		}
		route[i] = w
	}
	return route
}

// SetParam sets a tunable motion parameter by dotted name, for example
// point.lateral.kp, pose.angular.kd, pose.lead or point.max_speed.
func (c *Config) SetParam(name string, v float64) error {
	motionName, rest, ok := strings.Cut(name, ".")
	if !ok {
		return fmt.Errorf("config: unknown parameter %q", name)
	}

	var lateral, angular *control.Gains
	var maxSpeed *float64
	switch motionName {
	case "point":
		lateral, angular, maxSpeed = &c.Point.Lateral, &c.Point.Angular, &c.Point.MaxSpeed
	case "pose":
		lateral, angular, maxSpeed = &c.Pose.Lateral, &c.Pose.Angular, &c.Pose.MaxSpeed
		switch rest {
		case "lead":
			c.Pose.Lead = v
			return nil
		case "horizontal_drift":
			c.Pose.HorizontalDrift = v
			return nil
		}
	default:
		return fmt.Errorf("config: unknown parameter %q", name)
	}

	if rest == "max_speed" {
		*maxSpeed = v
		return nil
	}
	axis, gain, _ := strings.Cut(rest, ".")
	var g *control.Gains
	switch axis {
	case "lateral":
		g = lateral
	case "angular":
		g = angular
	default:
		return fmt.Errorf("config: unknown parameter %q", name)
	}
	switch gain {
	case "kp":
		g.Kp = v
	case "ki":
		g.Ki = v
	case "kd":
		g.Kd = v
	default:
		return fmt.Errorf("config: unknown parameter %q", name)
	}
	return nil
}
