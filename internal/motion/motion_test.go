package motion_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dynodom/internal/control"
	"github.com/san-kum/dynodom/internal/motion"
	"github.com/san-kum/dynodom/internal/pose"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func zeroSettle() control.ExitConditions {
	return control.ExitConditions{
		Small: control.NewExitCondition(1, 0),
		Large: control.NewExitCondition(3, 0),
	}
}

var _ = Describe("Move to point", func() {
	var (
		clk    *clock
		params motion.PointParams
	)

	build := func() *motion.Motion {
		m := motion.NewPoint(params)
		m.SetClock(clk.now)
		m.Reset()
		return m
	}

	BeforeEach(func() {
		clk = &clock{t: time.Unix(100, 0)}
		params = motion.DefaultPointParams()
	})

	It("starts idle and becomes active on reset", func() {
		m := motion.NewPoint(params)
		Expect(m.Phase()).To(Equal(motion.Idle))
		Expect(m.Kind()).To(Equal(motion.KindPoint))
		m.Reset()
		Expect(m.Phase()).To(Equal(motion.Active))
	})

	It("finishes within one tick when already at the target", func() {
		params.X, params.Y = 12, -4
		params.Exit = zeroSettle()
		m := build()

		lat, ang := m.Update(pose.New(12, -4, 0))
		Expect(m.IsFinished()).To(BeTrue())
		Expect(m.Phase()).To(Equal(motion.Finished))
		Expect(lat).To(BeZero())
		Expect(ang).To(BeZero())
	})

	It("drives straight at full speed toward a target ahead", func() {
		params.X, params.Y = 0, 48
		m := build()

		lat, ang := m.Update(pose.New(0, 0, 0))
		Expect(lat).To(BeNumerically("~", 127, 1e-9))
		Expect(ang).To(BeNumerically("~", 0, 1e-9))
		Expect(m.IsFinished()).To(BeFalse())
	})

	It("turns clockwise toward a target on the right", func() {
		params.X, params.Y = 48, 0
		m := build()

		lat, ang := m.Update(pose.New(0, 0, 0))
		Expect(ang).To(BeNumerically("~", 127, 1e-9))
		Expect(lat).To(BeNumerically(">=", 0))
		Expect(lat).To(BeNumerically("<", 1e-6))
	})

	It("does not reverse toward a target behind while driving forwards", func() {
		params.X, params.Y = 0, -48
		m := build()

		lat, _ := m.Update(pose.New(0, 0, 0))
		Expect(lat).To(BeZero())
	})

	It("drives in reverse toward a target behind when configured backwards", func() {
		params.X, params.Y = 0, -48
		params.Forwards = false
		m := build()

		lat, ang := m.Update(pose.New(0, 0, 0))
		Expect(lat).To(BeNumerically("~", -127, 1e-9))
		Expect(ang).To(BeNumerically("~", 0, 1e-9))
	})

	It("suppresses steering inside the settle radius", func() {
		params.X, params.Y = 3, 3
		m := build()

		_, ang := m.Update(pose.New(0, 0, 0))
		Expect(ang).To(BeZero())
	})

	It("exits early inside the early exit range", func() {
		params.X, params.Y = 0, 5
		params.EarlyExitRange = 6
		m := build()

		m.Update(pose.New(0, 0, 0))
		Expect(m.IsFinished()).To(BeTrue())
	})

	It("waits for the exit condition to settle", func() {
		params.X, params.Y = 0, 0.5
		m := build()

		m.Update(pose.New(0, 0, 0))
		Expect(m.IsFinished()).To(BeFalse())

		clk.advance(50 * time.Millisecond)
		m.Update(pose.New(0, 0, 0))
		Expect(m.IsFinished()).To(BeFalse())

		clk.advance(50 * time.Millisecond)
		m.Update(pose.New(0, 0, 0))
		Expect(m.IsFinished()).To(BeTrue())
	})

	It("reports an exit timeout when the target is never reached", func() {
		params.X, params.Y = 0, 50
		params.Exit.Large.MaxWait = 200 * time.Millisecond
		m := build()

		m.Update(pose.New(0, 0, 0))
		Expect(m.ExitTimedOut()).To(BeFalse())

		clk.advance(250 * time.Millisecond)
		m.Update(pose.New(0, 0, 0))
		Expect(m.ExitTimedOut()).To(BeTrue())
		Expect(m.IsFinished()).To(BeFalse())
	})

	It("tracks distance traveled and remaining", func() {
		params.X, params.Y = 100, 100
		m := build()

		_, ok := m.DistanceRemaining()
		Expect(ok).To(BeFalse())

		m.Update(pose.New(0, 0, 0))
		m.Update(pose.New(0, 3, 0))
		m.Update(pose.New(4, 3, 0))
		Expect(m.DistanceTraveled()).To(BeNumerically("~", 7, 1e-12))

		rem, ok := m.DistanceRemaining()
		Expect(ok).To(BeTrue())
		Expect(rem).To(BeNumerically("~", math.Hypot(96, 97), 1e-9))
		Expect(m.Error()).To(BeNumerically("~", rem, 1e-12))

		m.Reset()
		Expect(m.DistanceTraveled()).To(BeZero())
	})

	DescribeTable("readiness",
		func(mutate func(*motion.PointParams), ok bool) {
			mutate(&params)
			err := motion.NewPoint(params).IsReady()
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(motion.ErrInvalidParams))
			}
		},
		Entry("defaults", func(p *motion.PointParams) {}, true),
		Entry("zero max speed", func(p *motion.PointParams) { p.MaxSpeed = 0 }, false),
		Entry("NaN target", func(p *motion.PointParams) { p.X = math.NaN() }, false),
		Entry("infinite target", func(p *motion.PointParams) { p.Y = math.Inf(-1) }, false),
		Entry("negative min speed", func(p *motion.PointParams) { p.MinSpeed = -1 }, false),
		Entry("NaN gain", func(p *motion.PointParams) { p.Lateral.Kp = math.NaN() }, false),
		Entry("min speed above max speed", func(p *motion.PointParams) { p.MinSpeed, p.MaxSpeed = 90, 60 }, false),
		Entry("min speed equal to max speed", func(p *motion.PointParams) { p.MinSpeed, p.MaxSpeed = 60, 60 }, true),
		Entry("NaN exit threshold", func(p *motion.PointParams) { p.Exit.Small.Threshold = math.NaN() }, false),
		Entry("infinite exit threshold", func(p *motion.PointParams) { p.Exit.Large.Threshold = math.Inf(1) }, false),
		Entry("negative settle time", func(p *motion.PointParams) { p.Exit.Large.Settle = -time.Millisecond }, false),
		Entry("NaN velocity threshold", func(p *motion.PointParams) {
			p.Exit = p.Exit.WithVelocity(math.NaN(), 0)
		}, false),
	)

	It("exposes both PIDs for tuning", func() {
		params.X, params.Y = 0, 20
		m := build()
		gains := m.Gains()
		Expect(gains).To(HaveKeyWithValue("lateral.Kp", params.Lateral.Kp))
		Expect(gains).To(HaveKeyWithValue("angular.Kp", params.Angular.Kp))
		Expect(gains).To(HaveKey("angular.Slew"))

		Expect(m.Tune("lateral.Kp", 2)).To(Succeed())
		Expect(m.Gains()).To(HaveKeyWithValue("lateral.Kp", 2.0))
		Expect(m.Gains()).To(HaveKeyWithValue("angular.Kp", params.Angular.Kp))

		lat, _ := m.Update(pose.New(0, 0, 0))
		Expect(lat).To(BeNumerically("~", 40, 1e-9))
	})

	It("rejects unknown or non-finite tuning", func() {
		m := build()
		Expect(m.Tune("lateral.Kq", 1)).To(MatchError(control.ErrUnknownParam))
		Expect(m.Tune("steering.Kp", 1)).To(MatchError(control.ErrUnknownParam))
		Expect(m.Tune("Kp", 1)).To(MatchError(control.ErrUnknownParam))
		Expect(m.Tune("angular.Kd", math.Inf(1))).To(MatchError(motion.ErrInvalidParams))
		Expect(m.Gains()).To(HaveKeyWithValue("angular.Kd", params.Angular.Kd))
	})
})

var _ = Describe("Move to pose", func() {
	var (
		clk    *clock
		params motion.PoseParams
	)

	build := func() *motion.Motion {
		m := motion.NewPose(params)
		m.SetClock(clk.now)
		m.Reset()
		return m
	}

	BeforeEach(func() {
		clk = &clock{t: time.Unix(100, 0)}
		params = motion.DefaultPoseParams()
	})

	It("places the carrot ahead along the bearing to the target", func() {
		params.Target = pose.New(0, 40, 0)
		m := build()

		m.Update(pose.New(0, 0, 0))
		carrot, ok := m.Carrot()
		Expect(ok).To(BeTrue())
		Expect(carrot.X).To(BeNumerically("~", 0, 1e-9))
		Expect(carrot.Y).To(BeNumerically("~", 24, 1e-9))
	})

	It("holds the target directly inside the settle radius", func() {
		params.Target = pose.New(0, 5, 0)
		m := build()

		m.Update(pose.New(0, 0, 0))
		carrot, _ := m.Carrot()
		Expect(carrot.Y).To(BeNumerically("~", 5, 1e-12))
		Expect(m.FinalTurn()).To(BeFalse())
	})

	It("adds drift proportional to heading error far from the target", func() {
		params.Target = pose.New(40, 40, 0)
		params.MaxSpeed = 1000

		params.HorizontalDrift = 0
		_, plain := build().Update(pose.New(0, 0, 0))

		params.HorizontalDrift = 8
		_, drifted := build().Update(pose.New(0, 0, 0))

		Expect(plain).To(BeNumerically("~", 135, 1e-9))
		Expect(drifted).To(BeNumerically("~", 137, 1e-9))
	})

	It("turns to the target heading in the final phase", func() {
		params.Target = pose.New(0, 1, math.Pi/2)
		m := build()

		_, ang := m.Update(pose.New(0, 0, 0))
		Expect(m.FinalTurn()).To(BeTrue())
		Expect(ang).To(BeNumerically("~", 127, 1e-9))
	})

	It("weights heading error in the exit metric", func() {
		params.Target = pose.New(0, 0, 0)
		m := build()

		m.Update(pose.New(0, 0, pose.DegToRad(10)))
		Expect(m.Error()).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("finishes at the target pose with zero settle", func() {
		params.Target = pose.New(10, 10, 1)
		params.Exit = zeroSettle()
		m := build()

		m.Update(pose.New(10, 10, 1))
		Expect(m.IsFinished()).To(BeTrue())
	})

	It("rejects a non-finite target heading", func() {
		params.Target = pose.New(0, 0, math.NaN())
		Expect(motion.NewPose(params).IsReady()).To(MatchError(motion.ErrInvalidParams))
	})

	DescribeTable("rejects out-of-range tuning",
		func(mutate func(*motion.PoseParams)) {
			mutate(&params)
			Expect(motion.NewPose(params).IsReady()).To(MatchError(motion.ErrInvalidParams))
		},
		Entry("negative lead", func(p *motion.PoseParams) { p.Lead = -0.1 }),
		Entry("negative heading weight", func(p *motion.PoseParams) { p.HeadingWeight = -1 }),
		Entry("min speed above max speed", func(p *motion.PoseParams) { p.MinSpeed = p.MaxSpeed + 1 }),
		Entry("negative velocity max wait", func(p *motion.PoseParams) { p.Exit.Velocity.MaxWait = -time.Second }),
	)

	It("does not share exit timers between motions built from the same params", func() {
		params.Target = pose.New(0, 0, 0)
		a := build()
		b := build()

		a.Update(pose.New(0, 0, 0))
		clk.advance(100 * time.Millisecond)
		a.Update(pose.New(0, 0, 0))
		Expect(a.IsFinished()).To(BeTrue())

		b.Update(pose.New(0, 0, 0))
		Expect(b.IsFinished()).To(BeFalse())
	})
})

var _ = Describe("Helpers", func() {
	DescribeTable("AngleError wraps into [-pi, pi]",
		func(current, target, expected float64) {
			Expect(motion.AngleError(current, target)).To(BeNumerically("~", expected, 1e-9))
		},
		Entry("simple", 0.0, 1.0, 1.0),
		Entry("wrap positive", -3.0, 3.0, 6.0-2*math.Pi),
		Entry("wrap negative", 3.0, -3.0, 2*math.Pi-6.0),
		Entry("zero", 2.0, 2.0, 0.0),
	)

	DescribeTable("ApplySpeedConstraints",
		func(lat, ang, maxSpeed, minSpeed, wantLat, wantAng float64) {
			l, a := motion.ApplySpeedConstraints(lat, ang, maxSpeed, minSpeed)
			Expect(l).To(BeNumerically("~", wantLat, 1e-9))
			Expect(a).To(BeNumerically("~", wantAng, 1e-9))
		},
		Entry("within limits", 50.0, -20.0, 127.0, 0.0, 50.0, -20.0),
		Entry("scales both", 254.0, -127.0, 127.0, 0.0, 127.0, -63.5),
		Entry("raises to min keeping sign", 2.0, -3.0, 127.0, 10.0, 10.0, -10.0),
		Entry("zero stays zero", 0.0, 5.0, 127.0, 10.0, 0.0, 10.0),
	)

	It("round-trips differential drive kinematics", func() {
		l, r := motion.DifferentialDrive(10, 2, 12)
		Expect(l).To(Equal(22.0))
		Expect(r).To(Equal(-2.0))

		lat, ang := motion.InverseDifferentialDrive(l, r, 12)
		Expect(lat).To(BeNumerically("~", 10, 1e-12))
		Expect(ang).To(BeNumerically("~", 2, 1e-12))
	})
})
