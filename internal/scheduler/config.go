package scheduler

import (
	"fmt"
	"time"
)

const (
	MinFrequencyHz = 50
	MaxFrequencyHz = 1000

	// IdlePoll is how often a stopped or paused scheduler checks for
	// commands.
	IdlePoll = 10 * time.Millisecond
)

type Config struct {
	FrequencyHz int           `yaml:"frequency_hz"`
	AutoStart   bool          `yaml:"auto_start"`
	MaxJitter   time.Duration `yaml:"max_jitter"`
}

func DefaultConfig() Config {
	return Config{
		FrequencyHz: 100,
		AutoStart:   true,
		MaxJitter:   500 * time.Microsecond,
	}
}

// Interval is the period between scheduled updates.
func (c Config) Interval() time.Duration {
	return time.Second / time.Duration(c.FrequencyHz)
}

func (c Config) Validate() error {
	if c.FrequencyHz < MinFrequencyHz || c.FrequencyHz > MaxFrequencyHz {
		return fmt.Errorf("%w: frequency %d Hz outside [%d, %d]", ErrInvalidConfig, c.FrequencyHz, MinFrequencyHz, MaxFrequencyHz)
	}
	if c.MaxJitter < 0 {
		return fmt.Errorf("%w: negative jitter tolerance %v", ErrInvalidConfig, c.MaxJitter)
	}
	return nil
}

// Stats is a snapshot of scheduler activity.
type Stats struct {
	UpdatesCompleted uint64
	TotalUpdateTime  time.Duration
	MinUpdateTime    time.Duration
	MaxUpdateTime    time.Duration
	JitterViolations uint64
	Running          bool
	Paused           bool
}

// AverageUpdateTime is the mean duration of a fusion tick.
func (s Stats) AverageUpdateTime() time.Duration {
	if s.UpdatesCompleted == 0 {
		return 0
	}
	return s.TotalUpdateTime / time.Duration(s.UpdatesCompleted)
}

func (s Stats) record(d time.Duration, late bool) Stats {
	if s.UpdatesCompleted == 0 || d < s.MinUpdateTime {
		s.MinUpdateTime = d
	}
	if d > s.MaxUpdateTime {
		s.MaxUpdateTime = d
	}
	s.UpdatesCompleted++
	s.TotalUpdateTime += d
	if late {
		s.JitterViolations++
	}
	return s
}
