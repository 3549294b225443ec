package motion

import (
	"time"

	"github.com/san-kum/dynodom/internal/control"
	"github.com/san-kum/dynodom/internal/pose"
)

const (
	// PointSettleRadius is the distance inside which move-to-point stops
	// steering and stops forcing the travel direction.
	PointSettleRadius = 7.5

	// PoseSettleRadius is the distance inside which move-to-pose drops
	// the carrot and holds the target position directly.
	PoseSettleRadius = 6.0

	// FinalTurnRadius is the distance inside which move-to-pose turns to
	// the target heading.
	FinalTurnRadius = 2.0

	// HeadingErrorWeight scales heading error in degrees against position
	// error in the move-to-pose exit metric.
	HeadingErrorWeight = 0.1

	windupRange = 3.0
)

// PointParams configures a move-to-point motion. Build from
// DefaultPointParams and override fields.
type PointParams struct {
	X, Y           float64                `yaml:"-"`
	Forwards       bool                   `yaml:"forwards"`
	MaxSpeed       float64                `yaml:"max_speed"`
	MinSpeed       float64                `yaml:"min_speed"`
	SlewRate       float64                `yaml:"slew_rate"`
	EarlyExitRange float64                `yaml:"early_exit_range"`
	Lateral        control.Gains          `yaml:"lateral"`
	Angular        control.Gains          `yaml:"angular"`
	Exit           control.ExitConditions `yaml:"exit"`
}

func DefaultPointParams() PointParams {
	return PointParams{
		Forwards: true,
		MaxSpeed: 127,
		MinSpeed: 0,
		SlewRate: 10,
		Lateral:  control.Gains{Kp: 15, Ki: 0, Kd: 0.1},
		Angular:  control.Gains{Kp: 2, Ki: 0, Kd: 0.1},
		Exit:     control.DefaultExitConditions(),
	}
}

// PoseParams configures a move-to-pose motion. Target.Theta is in radians.
type PoseParams struct {
	Target          pose.Pose              `yaml:"-"`
	Forwards        bool                   `yaml:"forwards"`
	MaxSpeed        float64                `yaml:"max_speed"`
	MinSpeed        float64                `yaml:"min_speed"`
	SlewRate        float64                `yaml:"slew_rate"`
	EarlyExitRange  float64                `yaml:"early_exit_range"`
	Lateral         control.Gains          `yaml:"lateral"`
	Angular         control.Gains          `yaml:"angular"`
	HorizontalDrift float64                `yaml:"horizontal_drift"`
	Lead            float64                `yaml:"lead"`
	HeadingWeight   float64                `yaml:"heading_weight"`
	Exit            control.ExitConditions `yaml:"exit"`
}

func DefaultPoseParams() PoseParams {
	return PoseParams{
		Forwards:        true,
		MaxSpeed:        127,
		MinSpeed:        0,
		SlewRate:        10,
		Lateral:         control.Gains{Kp: 10, Ki: 0, Kd: 0.3},
		Angular:         control.Gains{Kp: 3, Ki: 0, Kd: 0.2},
		HorizontalDrift: 8,
		Lead:            0.6,
		HeadingWeight:   HeadingErrorWeight,
		Exit:            control.DefaultExitConditions().WithVelocity(5, 100*time.Millisecond),
	}
}
