package sim

import (
	"context"
	"time"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/odom"
)

// Pacer runs a motion on simulated time. Each Wait advances the robot by
// one tick and runs one odometry update, standing in for the scheduler.
type Pacer struct {
	robot  *Robot
	engine *odom.Engine
	tick   time.Duration
	epoch  time.Time
}

func NewPacer(r *Robot, engine *odom.Engine, tick time.Duration) *Pacer {
	if tick <= 0 {
		tick = chassis.DefaultTick
	}
	return &Pacer{robot: r, engine: engine, tick: tick, epoch: time.Unix(0, 0)}
}

func (p *Pacer) Now() time.Time { return p.epoch.Add(p.robot.Elapsed()) }

func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.robot.Advance(p.tick)
	p.engine.Update()
	return nil
}
