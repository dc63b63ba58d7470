package nav

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration of the lab robot on the reference map
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads the configuration from a YAML file and fills in defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Robot.WheelRadius == 0 {
		c.Robot.WheelRadius = DefaultWheelRadius
	}
	if c.Robot.WheelBase == 0 {
		c.Robot.WheelBase = DefaultWheelBase
	}
	if c.Robot.ForwardSpeed == 0 {
		c.Robot.ForwardSpeed = DefaultForwardSpeed
	}
	if c.Robot.TurnSpeed == 0 {
		c.Robot.TurnSpeed = DefaultTurnSpeed
	}
	if c.Odometer.PeriodMs == 0 {
		c.Odometer.PeriodMs = int(DefaultOdometerPeriod / time.Millisecond)
	}
	if c.Sensor.MaxRange == 0 {
		c.Sensor.MaxRange = DefaultMaxRange
	}
	if c.Sensor.SettleMs == 0 {
		c.Sensor.SettleMs = int(DefaultSettleDelay / time.Millisecond)
	}
	if c.Sensor.Samples == 0 {
		c.Sensor.Samples = DefaultSensorSamples
	}
	if c.Sensor.Retries == 0 {
		c.Sensor.Retries = DefaultSensorRetries
	}
	if c.Map.TileSize == 0 {
		c.Map.TileSize = DefaultTileSize
	}
	if c.Localization.MaxSteps == 0 {
		c.Localization.MaxSteps = DefaultMaxSteps
	}
	if len(c.Map.Layout) == 0 {
		c.Map.Layout = append([]string(nil), ReferenceLayout...)
	}
}

// Validate checks the values that defaults cannot repair
func (c *Config) Validate() error {
	if c.Robot.WheelRadius <= 0 {
		return fmt.Errorf("robot.wheelRadius must be positive")
	}
	if c.Robot.WheelBase <= 0 {
		return fmt.Errorf("robot.wheelBase must be positive")
	}
	if c.Robot.ForwardSpeed < 0 || c.Robot.TurnSpeed < 0 {
		return fmt.Errorf("robot speeds must not be negative")
	}
	if c.Odometer.PeriodMs < 0 {
		return fmt.Errorf("odometer.periodMs must not be negative")
	}
	if c.Sensor.MaxRange < 0 {
		return fmt.Errorf("sensor.maxRange must not be negative")
	}
	if c.Sensor.Samples < 0 {
		return fmt.Errorf("sensor.samples must not be negative")
	}
	if c.Localization.MaxSteps < 0 {
		return fmt.Errorf("localization.maxSteps must not be negative")
	}
	if c.UsesSerial() {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if _, err := BuildMap(c); err != nil {
		return fmt.Errorf("map: %w", err)
	}
	return nil
}

// BuildMap constructs the grid described by the map section
func BuildMap(c *Config) (*Map, error) {
	tileSize := c.Map.TileSize
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}
	layout := c.Map.Layout
	if len(layout) == 0 {
		layout = ReferenceLayout
	}
	return NewMapFromLayout(layout, c.Map.Walls, tileSize)
}

// OdometerOptions translates the odometer section into constructor options
func (c *Config) OdometerOptions() []OdometerOption {
	return []OdometerOption{
		WithPeriod(time.Duration(c.Odometer.PeriodMs) * time.Millisecond),
		WithTileSize(c.Map.TileSize),
		WithHeadingNormalization(c.Odometer.GetNormalizeHeading()),
	}
}

// LocalizerOptions translates the localization section into constructor options.
// A zero seed leaves the coin seeded from the clock.
func (c *Config) LocalizerOptions() []LocalizerOption {
	opts := []LocalizerOption{
		WithPolicy(c.Localization.Policy),
		WithMaxSteps(c.Localization.MaxSteps),
	}
	if c.Localization.Seed != 0 {
		opts = append(opts, WithSeed(c.Localization.Seed))
	}
	return opts
}
