package config

import (
	"slices"

	"github.com/san-kum/dynodom/internal/sensors"
	"github.com/san-kum/dynodom/internal/sim"
)

// Preset adjusts a default configuration.
type Preset struct {
	Description string
	Apply       func(*Config)
}

var Presets = map[string]Preset{
	"default": {
		Description: "vertical and horizontal tracking wheel with inertial heading",
		Apply:       func(*Config) {},
	},
	"parallel": {
		Description: "two vertical tracking wheels, heading from the wheel pair",
		Apply: func(c *Config) {
			c.Robot.Layout = sim.Layout{Wheels: []sim.Mount{
				{Axis: sim.Vertical, Offset: -5, Diameter: sensors.Omni275},
				{Axis: sim.Vertical, Offset: 5, Diameter: sensors.Omni275},
			}}
		},
	},
	"three-wheel": {
		Description: "two vertical and one horizontal tracking wheel",
		Apply: func(c *Config) {
			c.Robot.Layout = sim.Layout{Wheels: []sim.Mount{
				{Axis: sim.Vertical, Offset: -5, Diameter: sensors.Omni275},
				{Axis: sim.Vertical, Offset: 5, Diameter: sensors.Omni275},
				{Axis: sim.Horizontal, Offset: -3, Diameter: sensors.Omni275},
			}}
		},
	},
	"inertial": {
		Description: "drive encoders only, heading from the inertial sensor",
		Apply: func(c *Config) {
			c.Robot.Layout = sim.Layout{
				Wheels:   []sim.Mount{{Axis: sim.Vertical, Offset: 0, Diameter: sensors.Omni325, Ratio: 0.6}},
				Inertial: true,
			}
		},
	},
	"noisy": {
		Description: "default layout with wheel slip, inertial drift and a flaky calibration",
		Apply: func(c *Config) {
			c.Robot.WheelNoise = 0.02
			c.Robot.IMUDrift = 0.5
			c.Robot.CalibrationFailures = 2
			c.Runs = 8
			c.Workers = 4
		},
	},
}

// GetPreset returns the default configuration with the named preset
// applied, or nil when there is no such preset.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.Apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
