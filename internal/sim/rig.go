package sim

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/motion"
	"github.com/san-kum/dynodom/internal/odom"
	"github.com/san-kum/dynodom/internal/pose"
)

// Rig is a calibrated chassis driving a simulated robot on simulated time.
type Rig struct {
	Robot   *Robot
	Engine  *odom.Engine
	Chassis *chassis.Chassis
}

// NewRig builds the robot, calibrates its sensors and seeds odometry with
// the configured start pose. Calibration retries do not wait.
func NewRig(ctx context.Context, cfg Config, opts ...chassis.Option) (*Rig, error) {
	robot, err := NewRobot(cfg)
	if err != nil {
		return nil, err
	}
	engine := odom.New()
	pacer := NewPacer(robot, engine, chassis.DefaultTick)

	opts = append([]chassis.Option{
		chassis.WithPacer(pacer),
		chassis.WithCalibration(cfg.CalibrationFailures+1, 0),
	}, opts...)
	c := chassis.New(robot.Drivetrain(), engine, nil, opts...)
	if err := c.Calibrate(ctx, robot.Sensors()); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	c.SetPose(cfg.Start, true)

	return &Rig{Robot: robot, Engine: engine, Chassis: c}, nil
}

// Drift is the distance between the odometry estimate and ground truth.
func (r *Rig) Drift() float64 {
	return r.Engine.Pose(true).DistanceTo(r.Robot.Pose())
}

// Waypoint is one motion of a route. Theta is in degrees and only used by
// pose motions.
type Waypoint struct {
	Pose    bool          `yaml:"pose"`
	X       float64       `yaml:"x"`
	Y       float64       `yaml:"y"`
	Theta   float64       `yaml:"theta"`
	Timeout time.Duration `yaml:"timeout"`
}

func (w Waypoint) String() string {
	if w.Pose {
		return fmt.Sprintf("pose(%.2f, %.2f, %.1f°)", w.X, w.Y, w.Theta)
	}
	return fmt.Sprintf("point(%.2f, %.2f)", w.X, w.Y)
}

// Drive runs each waypoint in order, stopping at the first error or
// cancelled motion. Timed out motions do not stop the route.
func Drive(ctx context.Context, c *chassis.Chassis, route []Waypoint, pp motion.PointParams, qp motion.PoseParams) ([]chassis.Report, error) {
	reports := make([]chassis.Report, 0, len(route))
	for i, w := range route {
		var (
			rep chassis.Report
			err error
		)
		if w.Pose {
			target := pose.New(w.X, w.Y, pose.DegToRad(w.Theta))
			rep, err = c.MoveToPose(ctx, target, w.Timeout, qp)
		} else {
			rep, err = c.MoveToPoint(ctx, w.X, w.Y, w.Timeout, pp)
		}
		if err != nil {
			return reports, fmt.Errorf("sim: waypoint %d %s: %w", i, w, err)
		}
		reports = append(reports, rep)
		if rep.Result == chassis.Cancelled {
			break
		}
	}
	return reports, nil
}

// Trial runs motions on a fresh rig.
type Trial func(ctx context.Context, rig *Rig) ([]chassis.Report, error)

// Ensemble runs trial on runs independent rigs seeded cfg.Seed, cfg.Seed+1
// and so on, at most workers at a time. Options are shared by every rig,
// so observers passed here must be safe for concurrent use.
func Ensemble(ctx context.Context, cfg Config, runs, workers int, trial Trial, opts ...chassis.Option) ([][]chassis.Report, error) {
	results := make([][]chassis.Report, runs)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range runs {
		g.Go(func() error {
			c := cfg
			c.Seed = cfg.Seed + int64(i)
			rig, err := NewRig(ctx, c, opts...)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			reps, err := trial(ctx, rig)
			results[i] = reps
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
